package services

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// inboundEvent is the schema of the fields the relay reads. Everything else in
// a Telegram update is ignored. Raw messages let each level be type-checked
// separately so a wrong shape maps to the right validation error.
type inboundEvent struct {
	UpdateID json.Number     `json:"update_id"`
	Message  json.RawMessage `json:"message"`
}

type inboundMessage struct {
	Chat json.RawMessage `json:"chat"`
	Text json.RawMessage `json:"text"`
}

type inboundChat struct {
	ID json.RawMessage `json:"id"`
}

// ParsePayload validates an inbound webhook body and extracts the destination
// chat and the trimmed message text. It has no side effects.
//
// Errors are always one of ErrMalformedPayload, ErrMissingMessage or
// ErrMissingChatID.
func ParsePayload(raw []byte) (domain.ParsedMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.ParsedMessage{}, ErrMissingMessage
	}
	if !json.Valid(raw) {
		return domain.ParsedMessage{}, ErrMalformedPayload
	}
	if !isObject(raw) {
		return domain.ParsedMessage{}, ErrMissingMessage
	}

	var ev inboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		// update_id of an unexpected type; the rest may still be usable.
		ev = inboundEvent{}
		var loose struct {
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal(raw, &loose); err != nil {
			return domain.ParsedMessage{}, ErrMissingMessage
		}
		ev.Message = loose.Message
	}
	if !isObject(ev.Message) {
		return domain.ParsedMessage{}, ErrMissingMessage
	}

	var msg inboundMessage
	if err := json.Unmarshal(ev.Message, &msg); err != nil {
		return domain.ParsedMessage{}, ErrMissingMessage
	}
	if !isObject(msg.Chat) {
		return domain.ParsedMessage{}, ErrMissingChatID
	}
	var chat inboundChat
	if err := json.Unmarshal(msg.Chat, &chat); err != nil {
		return domain.ParsedMessage{}, ErrMissingChatID
	}
	id, ok := conversationID(chat.ID)
	if !ok {
		return domain.ParsedMessage{}, ErrMissingChatID
	}

	var text string
	if len(msg.Text) > 0 {
		// non-string text counts as absent
		_ = json.Unmarshal(msg.Text, &text)
	}

	var updateID int64
	if ev.UpdateID != "" {
		updateID, _ = strconv.ParseInt(ev.UpdateID.String(), 10, 64)
	}

	return domain.ParsedMessage{
		ConversationID: id,
		Text:           strings.TrimSpace(text),
		UpdateID:       updateID,
	}, nil
}

// conversationID accepts a JSON number (kept as its literal) or a non-empty
// JSON string.
func conversationID(raw json.RawMessage) (domain.ConversationID, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", false
		}
		return domain.ConversationID(s), true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return domain.ConversationID(n.String()), true
	default:
		return "", false
	}
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
