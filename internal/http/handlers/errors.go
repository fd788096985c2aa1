// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// Codes are lowercase snake_case and are returned in the `code` field of the
// ErrorResponse envelope. Generic codes mirror HTTP status semantics; payload
// validation failures reuse the code carried by the domain.ValidationError
// (missing_message, missing_chat_id, malformed_payload) so clients can branch
// on the exact reason.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "payload_too_large",
//	  "message": "request body too large"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeInternal         = "internal_error"

	// Webhook validation, see services.ErrMissingMessage and friends.
	ErrCodeMissingMessage   = "missing_message"
	ErrCodeMissingChatID    = "missing_chat_id"
	ErrCodeMalformedPayload = "malformed_payload"
)
