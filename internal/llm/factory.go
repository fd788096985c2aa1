package llm

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-chat-relay/internal/config"
)

// New builds the configured completion provider, wrapped with retries when
// COMPLETION_MAX_RETRIES > 0.
func New(cfg config.CompletionConfig) (Generator, error) {
	o := Options{
		APIKey:      cfg.APIKey(),
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Referrer:    cfg.OpenRouterReferrer,
		Title:       cfg.OpenRouterTitle,
		HTTPClient:  SharedHTTPClient(cfg.Timeout + cfg.Timeout/2),
	}

	var g Generator
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		g = NewOpenAI(o)
	case config.ProviderAnthropic:
		g = NewAnthropic(o)
	default:
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Provider)
	}

	return NewRetrying(g, RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Initial:    cfg.RetryInitial,
		Max:        cfg.RetryMaxBackoff,
	}), nil
}
