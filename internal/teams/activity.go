// Package teams models the Bot Framework activities exchanged with Microsoft
// Teams and sends replies through the Bot Framework connector.
package teams

import (
	"bytes"
	"encoding/json"
)

// Activity types handled by the relay.
const (
	ActivityMessage            = "message"
	ActivityConversationUpdate = "conversationUpdate"
	ActivityTyping             = "typing"
)

// DefaultConversationID is used when an inbound activity carries no
// conversation.
const DefaultConversationID = "default"

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// Entity is an activity entity. Only mentions are interpreted.
type Entity struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Mentioned *ChannelAccount `json:"mentioned,omitempty"`
}

// Attachment is a rich card or file attached to an activity.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content,omitempty"`
}

// Activity is a Bot Framework activity.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	Text         string               `json:"text,omitempty"`
	TextFormat   string               `json:"textFormat,omitempty"`
	Value        json.RawMessage      `json:"value,omitempty"`
	Entities     []Entity             `json:"entities,omitempty"`
	MembersAdded []ChannelAccount     `json:"membersAdded,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
}

// LocalConversationID returns the chat conversation id, or "default".
func (a *Activity) LocalConversationID() string {
	if a.Conversation != nil && a.Conversation.ID != "" {
		return a.Conversation.ID
	}
	return DefaultConversationID
}

// RecipientName returns the display name of the bot the activity was sent to.
func (a *Activity) RecipientName() string {
	if a.Recipient == nil {
		return ""
	}
	return a.Recipient.Name
}

// UserText returns the message text with bot mentions removed.
func (a *Activity) UserText() string {
	return ExtractUserText(a.Text, a.Entities, a.RecipientName())
}

// AddedMembersOtherThanBot reports whether a conversationUpdate added anyone
// besides the bot itself.
func (a *Activity) AddedMembersOtherThanBot() bool {
	for _, m := range a.MembersAdded {
		if a.Recipient == nil || m.ID != a.Recipient.ID {
			return true
		}
	}
	return false
}

// Reply creates a message activity answering a.
func (a *Activity) Reply(text string) *Activity {
	return &Activity{
		Type:         ActivityMessage,
		ServiceURL:   a.ServiceURL,
		ChannelID:    a.ChannelID,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		Text:         text,
		TextFormat:   "markdown",
		ReplyToID:    a.ID,
	}
}

// Typing creates a typing indicator for a's conversation.
func (a *Activity) Typing() *Activity {
	reply := a.Reply("")
	reply.Type = ActivityTyping
	reply.TextFormat = ""
	return reply
}

// FeedbackValue is the payload of a feedback card button.
type FeedbackValue struct {
	Action         string `json:"action"`
	Rating         string `json:"rating"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

const feedbackAction = "feedback"

// Feedback decodes a feedback button click from the activity value. The value
// may be an object or a JSON string holding one. It reports false when the
// activity is not a feedback click.
func (a *Activity) Feedback() (*FeedbackValue, bool) {
	raw := bytes.TrimSpace(a.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		raw = []byte(s)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	if action, _ := obj["action"].(string); action != feedbackAction {
		return nil, false
	}

	str := func(key string) string {
		s, _ := obj[key].(string)
		return s
	}
	return &FeedbackValue{
		Action:         feedbackAction,
		Rating:         str("rating"),
		ConversationID: str("conversation_id"),
		MessageID:      str("message_id"),
	}, true
}
