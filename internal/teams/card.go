package teams

import (
	"encoding/json"

	"github.com/capitalize-ai/genie-relay/internal/model"
)

const (
	ContentTypeHeroCard = "application/vnd.microsoft.card.hero"
	actionMessageBack   = "messageBack"
)

// HeroCard is a Bot Framework hero card.
type HeroCard struct {
	Title   string       `json:"title,omitempty"`
	Text    string       `json:"text,omitempty"`
	Buttons []CardAction `json:"buttons,omitempty"`
}

// CardAction is a button on a card.
type CardAction struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Value       string `json:"value,omitempty"`
	Text        string `json:"text,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
}

// FeedbackCard builds the "Was this response helpful?" card for a remote
// message. Button values round-trip through Activity.Feedback.
func FeedbackCard(conversationID, messageID string) Attachment {
	button := func(title, display string, rating model.Rating) CardAction {
		value, _ := json.Marshal(FeedbackValue{
			Action:         feedbackAction,
			Rating:         string(rating),
			ConversationID: conversationID,
			MessageID:      messageID,
		})
		return CardAction{
			Type:        actionMessageBack,
			Title:       title,
			Value:       string(value),
			Text:        "Thanks for the feedback!",
			DisplayText: display,
		}
	}

	return Attachment{
		ContentType: ContentTypeHeroCard,
		Content: HeroCard{
			Text: "Was this response helpful?",
			Buttons: []CardAction{
				button("👍 Yes", "👍", model.RatingPositive),
				button("👎 No", "👎", model.RatingNegative),
			},
		},
	}
}

// CardReply creates a message activity carrying a single card.
func (a *Activity) CardReply(card Attachment) *Activity {
	reply := a.Reply("")
	reply.TextFormat = ""
	reply.Attachments = []Attachment{card}
	return reply
}
