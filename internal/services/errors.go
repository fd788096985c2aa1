// Package services defines the relay's business logic: payload parsing,
// command routing and the relay pipeline that orchestrates the completion
// provider and chat transport calls.
//
// This file centralizes the service-level validation errors so that they can
// be returned consistently and checked by callers with errors.Is. Translation
// into HTTP status codes is performed at the handler layer.
package services

import "github.com/tbourn/go-chat-relay/internal/domain"

// Validation errors returned by ParsePayload. They are the only errors that
// change the webhook's HTTP outcome.
var (
	// ErrMissingMessage is returned when the event has no `message` object.
	ErrMissingMessage = &domain.ValidationError{Code: "missing_message", Reason: "No message received"}

	// ErrMissingChatID is returned when `message.chat.id` is absent or is
	// neither a number nor a string.
	ErrMissingChatID = &domain.ValidationError{Code: "missing_chat_id", Reason: "No chat id received"}

	// ErrMalformedPayload is returned when the body is not JSON at all.
	ErrMalformedPayload = &domain.ValidationError{Code: "malformed_payload", Reason: "Payload is not valid JSON"}
)
