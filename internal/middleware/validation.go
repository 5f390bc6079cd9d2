package middleware

import (
	"unicode/utf8"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/teams"
)

// MaxTextLength bounds inbound message text.
const MaxTextLength = 100000

// ValidateActivity checks that an inbound activity can be processed and
// answered. It returns a *genie.ValidationError describing every problem.
func ValidateActivity(a *teams.Activity) error {
	var fields []string
	if a.Type == "" {
		fields = append(fields, "type")
	}
	if a.Type == teams.ActivityMessage || a.Type == teams.ActivityConversationUpdate {
		if a.ServiceURL == "" {
			fields = append(fields, "serviceUrl")
		}
	}
	if len(fields) > 0 {
		return &genie.ValidationError{Fields: fields, Reason: "activity is missing required fields"}
	}

	if len(a.Text) > MaxTextLength {
		return &genie.ValidationError{Fields: []string{"text"}, Reason: "text exceeds maximum length"}
	}
	if !utf8.ValidString(a.Text) {
		return &genie.ValidationError{Fields: []string{"text"}, Reason: "text must be valid UTF-8"}
	}
	return nil
}
