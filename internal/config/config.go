// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the relay settings:
// HTTP server timeouts, logging, Telegram transport, completion provider,
// delivery journal and observability.
//
// Parsing is done by caarlos0/env struct tags; Load then normalizes and
// validates the result so the rest of the program receives a ready Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Completion providers understood by the relay.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrMissingSecret is returned when a required credential is absent or blank.
var ErrMissingSecret = errors.New("missing required secret")

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS" envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"go-chat-relay"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"`
}

// TelegramConfig configures the chat transport and webhook registration.
type TelegramConfig struct {
	BotToken    string        `env:"BOT_TOKEN"`
	APIEndpoint string        `env:"TELEGRAM_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
	Timeout     time.Duration `env:"TELEGRAM_TIMEOUT" envDefault:"15s"`
	ParseMode   string        `env:"MESSAGE_PARSE_MODE"`
	WebhookURL  string        `env:"WEBHOOK_URL"`
	WebhookPath string        `env:"WEBHOOK_PATH" envDefault:"/webhook"`
}

// CompletionConfig configures the completion provider call.
type CompletionConfig struct {
	Provider        string        `env:"COMPLETION_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	BaseURL         string        `env:"COMPLETION_BASE_URL"`
	Model           string        `env:"COMPLETION_MODEL"`
	MaxTokens       int           `env:"COMPLETION_MAX_TOKENS" envDefault:"1500"`
	Temperature     float32       `env:"COMPLETION_TEMPERATURE" envDefault:"1.0"`
	Timeout         time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`

	// Retry wrapper; 0 retries keeps the single-attempt behavior.
	MaxRetries      int           `env:"COMPLETION_MAX_RETRIES" envDefault:"0"`
	RetryInitial    time.Duration `env:"COMPLETION_RETRY_INITIAL" envDefault:"500ms"`
	RetryMaxBackoff time.Duration `env:"COMPLETION_RETRY_MAX" envDefault:"5s"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Prompts
	PersonaPath string `env:"PERSONA_PROMPT_PATH"`
	ReplyLocale string `env:"REPLY_LOCALE" envDefault:"ru"`
}

// APIKey returns the credential of the selected provider.
func (c CompletionConfig) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"` // must exceed COMPLETION_TIMEOUT + TELEGRAM_TIMEOUT
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	GinMode           string        `env:"GIN_MODE" envDefault:"release"`

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`

	// Delivery journal; empty disables it.
	JournalDBPath string `env:"JOURNAL_DB_PATH"`

	Telegram   TelegramConfig
	Completion CompletionConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// Parse reads and normalizes the environment without validating it. The
// maintenance commands use it because they need only part of the settings.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.GinMode = strings.ToLower(strings.TrimSpace(cfg.GinMode))
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	cfg.Telegram.WebhookPath = normalizePath(cfg.Telegram.WebhookPath)
	cfg.Telegram.ParseMode = strings.TrimSpace(cfg.Telegram.ParseMode)
	cfg.Completion.Provider = strings.ToLower(strings.TrimSpace(cfg.Completion.Provider))
	cfg.Completion.ReplyLocale = strings.TrimSpace(cfg.Completion.ReplyLocale)
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
}

// Validate checks cross-field constraints that struct tags cannot express.
func Validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}

	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return fmt.Errorf("%w: BOT_TOKEN", ErrMissingSecret)
	}
	if cfg.Telegram.Timeout <= 0 {
		return errors.New("TELEGRAM_TIMEOUT must be > 0")
	}
	if strings.Count(cfg.Telegram.APIEndpoint, "%s") != 2 {
		return errors.New("TELEGRAM_API_ENDPOINT must contain two %s verbs (token, method)")
	}

	switch cfg.Completion.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.Completion.OpenAIAPIKey) == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingSecret)
		}
	case ProviderAnthropic:
		if strings.TrimSpace(cfg.Completion.AnthropicAPIKey) == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissingSecret)
		}
	default:
		return fmt.Errorf("COMPLETION_PROVIDER must be %q or %q", ProviderOpenAI, ProviderAnthropic)
	}
	if cfg.Completion.MaxTokens <= 0 {
		return errors.New("COMPLETION_MAX_TOKENS must be > 0")
	}
	if hi := maxTemperature(cfg.Completion.Provider); cfg.Completion.Temperature < 0 || cfg.Completion.Temperature > hi {
		return fmt.Errorf("COMPLETION_TEMPERATURE must be in [0,%g] for %s", hi, cfg.Completion.Provider)
	}
	if cfg.Completion.Timeout <= 0 {
		return errors.New("COMPLETION_TIMEOUT must be > 0")
	}
	// The webhook response waits for generation and delivery.
	if cfg.WriteTimeout <= cfg.Completion.Timeout+cfg.Telegram.Timeout {
		return fmt.Errorf("WRITE_TIMEOUT (%s) must exceed COMPLETION_TIMEOUT + TELEGRAM_TIMEOUT (%s)",
			cfg.WriteTimeout, cfg.Completion.Timeout+cfg.Telegram.Timeout)
	}
	if cfg.Completion.MaxRetries < 0 {
		return errors.New("COMPLETION_MAX_RETRIES must be >= 0")
	}
	if cfg.Completion.MaxRetries > 0 && (cfg.Completion.RetryInitial <= 0 || cfg.Completion.RetryMaxBackoff < cfg.Completion.RetryInitial) {
		return errors.New("COMPLETION_RETRY_INITIAL must be > 0 and <= COMPLETION_RETRY_MAX")
	}

	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// maxTemperature is the upper sampling temperature bound of provider's API.
func maxTemperature(provider string) float32 {
	if provider == ProviderAnthropic {
		return 1
	}
	return 2
}

// normalizePath ensures a leading '/' and strips trailing '/' (except root).
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/webhook"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
