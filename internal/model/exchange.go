// Package model defines data structures shared by the relay packages.
package model

import (
	"strings"
)

// Status is the normalized state of a remote exchange.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusUnknown   Status = "UNKNOWN"
)

// Raw Genie statuses grouped by the normalized state they map to.
var (
	completedAliases = []string{"COMPLETED", "SUCCESS", "FINISHED"}
	failedAliases    = []string{"FAILED", "ERROR"}
	pendingAliases   = []string{"PENDING", "SUBMITTED", "FILTERING_CONTEXT", "ASKING_AI", "PENDING_WAREHOUSE"}
	runningAliases   = []string{
		"RUNNING", "EXECUTING", "EXECUTING_QUERY", "QUERYING", "QUERYING_HISTORY",
		"FETCHING_METADATA", "COMPILING_DATA",
	}
)

// ParseStatus maps a raw status string from the remote service onto a Status.
// Anything unrecognized, including the empty string, is StatusUnknown.
func ParseStatus(raw string) Status {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case s == "":
		return StatusUnknown
	case contains(completedAliases, s):
		return StatusCompleted
	case contains(failedAliases, s):
		return StatusFailed
	case contains(pendingAliases, s):
		return StatusPending
	case contains(runningAliases, s):
		return StatusRunning
	default:
		return StatusUnknown
	}
}

// Terminal reports whether polling stops at this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return 0
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RemoteExchange is one question/answer round trip against the Q&A backend.
type RemoteExchange struct {
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id"`
	Status         Status       `json:"status"`
	RawStatus      string       `json:"raw_status,omitempty"`
	Question       string       `json:"question,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// NewExchange creates an exchange in the pending state.
func NewExchange(conversationID, messageID, question string) *RemoteExchange {
	return &RemoteExchange{
		ConversationID: conversationID,
		MessageID:      messageID,
		Status:         StatusPending,
		Question:       question,
	}
}

// Advance moves the exchange to next if that is a forward transition.
// Unknown and backward statuses leave the current status in place.
// It reports whether the status changed.
func (e *RemoteExchange) Advance(next Status) bool {
	if e.Status.Terminal() {
		return false
	}
	if next.rank() <= e.Status.rank() {
		return false
	}
	e.Status = next
	return true
}

// Attachment is a structured piece of the remote answer.
type Attachment struct {
	ID string `json:"id"`
	// Text is the explanatory text, empty when the attachment has none.
	Text string `json:"text,omitempty"`
	// HasQuery is set when the attachment references a query result.
	HasQuery bool `json:"has_query,omitempty"`
	// Raw is the attachment object as received.
	Raw map[string]any `json:"-"`
}

// QueryResult is a tabular query result.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}
