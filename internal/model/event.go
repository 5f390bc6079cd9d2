package model

import (
	"time"
)

// EventType represents the type of relay event.
type EventType string

const (
	EventTypeExchangeCompleted EventType = "exchange.completed"
	EventTypeExchangeFailed    EventType = "exchange.failed"
	EventTypeExchangeTimedOut  EventType = "exchange.timed_out"
	EventTypeFeedback          EventType = "feedback.submitted"
)

// RelayEvent records something that happened to an exchange. Events are
// published for audit and analytics and never read back by the relay.
type RelayEvent struct {
	ID                   string         `json:"id"`
	Type                 EventType      `json:"type"`
	LocalConversationID  string         `json:"local_conversation_id,omitempty"`
	RemoteConversationID string         `json:"remote_conversation_id"`
	MessageID            string         `json:"message_id"`
	Reason               string         `json:"reason,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}
