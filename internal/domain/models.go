// Package domain defines the request-scoped values that flow through the relay
// pipeline (parsed messages, routing decisions, outcomes) and the persistence
// model of the optional delivery journal. Values here are shared across the
// services, adapter and repository layers.
package domain

import (
	"strconv"
	"time"
)

// ConversationID is the opaque identifier of the chat a reply is sent to.
//
// It keeps the lexical form of the inbound `message.chat.id` value: a JSON
// number literal (e.g. "42", "-1001234567890") or a JSON string (e.g.
// "@channel"). Adapters decide how to address the chat from it.
type ConversationID string

// String returns the lexical form of the identifier.
func (id ConversationID) String() string { return string(id) }

// Int64 reports the numeric form of the identifier when it is an integer.
func (id ConversationID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParsedMessage is the validated, typed view of an inbound webhook event.
// It is created once per request and never mutated.
//
// Fields:
//   - ConversationID: destination chat of the reply.
//   - Text: message text, trimmed; empty when the event carried none.
//   - UpdateID: the platform's update sequence number (0 when absent).
type ParsedMessage struct {
	ConversationID ConversationID
	Text           string
	UpdateID       int64
}

// RouteKind classifies a message text.
type RouteKind string

const (
	RouteStart   RouteKind = "start"
	RouteHelp    RouteKind = "help"
	RouteContent RouteKind = "content"
)

// RouteDecision is the result of command routing. Text is only meaningful for
// RouteContent and carries the prompt forwarded to the completion provider.
type RouteDecision struct {
	Kind RouteKind
	Text string
}

// Outcome describes a successfully acknowledged relay invocation.
//
// Degraded is true when the completion provider failed and the apology text
// was sent instead. Delivered is false when the chat transport rejected or
// failed the outbound send; neither flag changes the webhook acknowledgment.
type Outcome struct {
	ConversationID ConversationID `json:"conversation_id"`
	Route          RouteKind      `json:"route"`
	Reply          string         `json:"-"`
	Degraded       bool           `json:"degraded"`
	Delivered      bool           `json:"delivered"`
}

// Delivery is one row of the delivery journal. It records how a relay
// invocation ended without storing any message text.
type Delivery struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	UpdateID        int64     `json:"update_id"        gorm:"index"`
	ChatID          string    `json:"chat_id"          gorm:"type:varchar(64);not null;index:idx_delivery_chat"`
	Route           string    `json:"route"            gorm:"type:varchar(16);not null"`
	ProviderError   string    `json:"provider_error"   gorm:"type:varchar(32)"`
	TransportStatus int       `json:"transport_status"`
	TransportError  string    `json:"transport_error"  gorm:"type:text"`
	Delivered       bool      `json:"delivered"        gorm:"not null"`
	LatencyMS       int64     `json:"latency_ms"`
	CreatedAt       time.Time `json:"created_at"       gorm:"index"`
}

// TableName returns the database table name for Delivery.
func (Delivery) TableName() string { return "deliveries" }
