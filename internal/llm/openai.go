package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.GPT4

// Options configures a provider adapter.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32

	// OpenRouter attribution headers (optional, OpenAI adapter only)
	Referrer string
	Title    string

	HTTPClient *http.Client
}

// OpenAIProvider calls an OpenAI-compatible chat-completions endpoint
// (OpenAI itself, OpenRouter, or any proxy speaking the same API).
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI builds an OpenAIProvider from o.
func NewOpenAI(o Options) *OpenAIProvider {
	config := openai.DefaultConfig(o.APIKey)
	if o.BaseURL != "" {
		config.BaseURL = strings.TrimRight(o.BaseURL, "/")
	}
	client := o.HTTPClient
	if client == nil {
		client = SharedHTTPClient(0)
	}
	config.HTTPClient = withHeaders(client, openRouterHeaders(o.Referrer, o.Title))

	model := o.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   o.MaxTokens,
		temperature: o.Temperature,
	}
}

// Generate sends [system: persona, user: userText] and returns the trimmed
// content of the first choice.
func (p *OpenAIProvider) Generate(ctx context.Context, persona, userText string) (string, error) {
	tr := otel.Tracer("llm/OpenAIProvider")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("llm.model", p.model),
			attribute.Int("llm.max_tokens", p.maxTokens),
		),
	)
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: persona},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
		MaxTokens:   p.maxTokens,
		Temperature: wireTemperature(p.temperature),
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", providerError("openai", domain.ProviderMalformedResponse, 0, errors.New("response has no choices"))
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", providerError("openai", domain.ProviderMalformedResponse, 0, errors.New("first choice has empty content"))
	}
	span.SetAttributes(attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens))
	return content, nil
}

// wireTemperature keeps a configured 0 on the wire. go-openai omits a zero
// temperature, which the API would read as its default of 1.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return providerError("openai", kindForStatus(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return providerError("openai", kindForStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, err)
	}
	return providerError("openai", kindForTransport(err), 0, err)
}
