package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// kindForStatus maps an HTTP status reported by a provider to an error kind.
func kindForStatus(status int) domain.ProviderErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ProviderUnauthorized
	case http.StatusTooManyRequests:
		return domain.ProviderRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.ProviderTimeout
	default:
		return domain.ProviderUnknown
	}
}

// kindForTransport classifies errors raised before a status was available:
// deadlines, network timeouts and undecodable bodies.
func kindForTransport(err error) domain.ProviderErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ProviderTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ProviderTimeout
	}
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &te) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.ProviderMalformedResponse
	}
	return domain.ProviderUnknown
}

func providerError(provider string, kind domain.ProviderErrorKind, status int, err error) *domain.ProviderError {
	return &domain.ProviderError{Kind: kind, Provider: provider, Status: status, Err: err}
}
