package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

const anthropicDefaultBaseURL = "https://api.anthropic.com"

// AnthropicProvider calls the Anthropic Messages API. The persona is sent as
// the system prompt.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropic builds an AnthropicProvider from o. SDK-level retries are
// disabled.
func NewAnthropic(o Options) *AnthropicProvider {
	client := o.HTTPClient
	if client == nil {
		client = SharedHTTPClient(0)
	}
	model := o.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	c := anthropic.NewClient(
		option.WithAPIKey(o.APIKey),
		option.WithBaseURL(normalizeAnthropicBaseURL(o.BaseURL)),
		option.WithHTTPClient(client),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{
		client:      c,
		model:       model,
		maxTokens:   int64(o.MaxTokens),
		temperature: float64(o.Temperature),
	}
}

// Generate sends userText with persona as system prompt and returns the
// concatenated, trimmed text blocks of the reply.
func (p *AnthropicProvider) Generate(ctx context.Context, persona, userText string) (string, error) {
	tr := otel.Tracer("llm/AnthropicProvider")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("llm.model", p.model),
			attribute.Int64("llm.max_tokens", p.maxTokens),
		),
	)
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: persona}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		},
		Temperature: anthropic.Float(p.temperature),
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropic(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", providerError("anthropic", domain.ProviderMalformedResponse, 0, errors.New("response has no text content"))
	}
	span.SetAttributes(attribute.Int64("llm.completion_tokens", resp.Usage.OutputTokens))
	return content, nil
}

func classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		kind := kindForStatus(apiErr.StatusCode)
		// 529 overloaded behaves like a rate limit.
		if apiErr.StatusCode == 529 {
			kind = domain.ProviderRateLimited
		}
		return providerError("anthropic", kind, apiErr.StatusCode, err)
	}
	return providerError("anthropic", kindForTransport(err), 0, err)
}

func normalizeAnthropicBaseURL(apiBase string) string {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	base = strings.TrimSuffix(base, "/v1")
	if base == "" {
		return anthropicDefaultBaseURL
	}
	return base
}
