package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// Generator is the completion contract shared by every adapter.
type Generator interface {
	Generate(ctx context.Context, persona, userText string) (string, error)
}

// RetryPolicy bounds RetryingProvider. MaxRetries counts extra attempts after
// the first one.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
}

// RetryingProvider wraps a Generator with exponential backoff. Rate limits,
// 5xx responses and network failures without a status are retried; the
// caller's context bounds the whole sequence.
type RetryingProvider struct {
	Next   Generator
	Policy RetryPolicy
}

// NewRetrying returns next unchanged when the policy allows no retries.
func NewRetrying(next Generator, p RetryPolicy) Generator {
	if p.MaxRetries <= 0 {
		return next
	}
	return &RetryingProvider{Next: next, Policy: p}
}

// Generate implements Generator.
func (r *RetryingProvider) Generate(ctx context.Context, persona, userText string) (string, error) {
	var (
		out     string
		lastErr error
		attempt int
	)

	op := func() error {
		attempt++
		text, err := r.Next.Generate(ctx, persona, userText)
		if err == nil {
			out = text
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("completion failed, will retry")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(r.newBackOff(), ctx), notify)
	if err == nil {
		return out, nil
	}
	// A cancelled context surfaces as ctx.Err(); report the provider's own
	// failure when one was seen.
	if lastErr != nil {
		return "", lastErr
	}
	return "", providerError("retry", kindForTransport(err), 0, err)
}

func (r *RetryingProvider) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.Policy.Initial > 0 {
		b.InitialInterval = r.Policy.Initial
	}
	if r.Policy.Max > 0 {
		b.MaxInterval = r.Policy.Max
	}
	b.MaxElapsedTime = 0 // bounded by attempts and ctx
	return backoff.WithMaxRetries(b, uint64(r.Policy.MaxRetries))
}

// retryable reports whether err is transient. An unknown failure that carries
// a 4xx status is a rejected request and will fail the same way again.
func retryable(err error) bool {
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		return true
	}
	switch pe.Kind {
	case domain.ProviderRateLimited:
		return true
	case domain.ProviderUnknown:
		return pe.Status == 0 || pe.Status >= http.StatusInternalServerError
	default:
		return false
	}
}
