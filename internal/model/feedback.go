package model

import "strings"

// Rating is a feedback verdict accepted by the remote service.
type Rating string

const (
	RatingPositive Rating = "POSITIVE"
	RatingNegative Rating = "NEGATIVE"
)

// NormalizeRating upper-cases a rating. The second return is false when the
// value is not one the remote service accepts.
func NormalizeRating(raw string) (Rating, bool) {
	r := Rating(strings.ToUpper(strings.TrimSpace(raw)))
	switch r {
	case RatingPositive, RatingNegative:
		return r, true
	default:
		return r, false
	}
}

// FeedbackEvent is built from a feedback button click and sent once.
type FeedbackEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Rating         string `json:"rating"`
}

// ConversationBinding maps a chat conversation to a remote conversation.
type ConversationBinding struct {
	LocalConversationID  string `json:"local_conversation_id"`
	RemoteConversationID string `json:"remote_conversation_id"`
}
