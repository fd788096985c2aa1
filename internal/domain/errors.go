package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports an inbound payload that cannot be relayed. It is the
// only error kind that changes the webhook's HTTP outcome.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ProviderErrorKind classifies completion-provider failures.
type ProviderErrorKind string

const (
	ProviderUnauthorized      ProviderErrorKind = "unauthorized"
	ProviderRateLimited       ProviderErrorKind = "rate_limited"
	ProviderTimeout           ProviderErrorKind = "timeout"
	ProviderMalformedResponse ProviderErrorKind = "malformed_response"
	ProviderUnknown           ProviderErrorKind = "unknown"
)

// ProviderError is returned by completion adapters. Status is the HTTP status
// reported by the provider, or 0 when no response was received.
type ProviderError struct {
	Kind     ProviderErrorKind
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderErrorKindOf extracts the failure kind from err, or ProviderUnknown
// when err is not a *ProviderError.
func ProviderErrorKindOf(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ProviderUnknown
}

// TransportError is returned by chat transports when an outbound send fails.
// Status and Body carry what the transport reported for diagnostics.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transport status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
