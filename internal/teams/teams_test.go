package teams

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/genie-relay/internal/genie"
)

func TestExtractUserText(t *testing.T) {
	mention := []Entity{{Type: "mention", Text: "<at>Bot</at>", Mentioned: &ChannelAccount{ID: "b1", Name: "Bot"}}}

	cases := []struct {
		name      string
		text      string
		entities  []Entity
		recipient string
		want      string
	}{
		{"mention markup", "<at>Bot</at> what is revenue?", mention, "Bot", "what is revenue?"},
		{"plain name with colon", "Bot: what is revenue?", nil, "Bot", "what is revenue?"},
		{"at sign and case", "@bot, top customers", nil, "Bot", "top customers"},
		{"name not at start", "ask Bot later", nil, "Bot", "ask Bot later"},
		{"name prefix of word", "Botany facts", nil, "Bot", "Botany facts"},
		{"only mention", "<at>Bot</at>", mention, "Bot", ""},
		{"non-ascii name", "@Café: what is revenue?", nil, "Café", "what is revenue?"},
		{"non-ascii name prefix of word", "Cafés nearby", nil, "Café", "Cafés nearby"},
		{"name alone", "Bot", nil, "Bot", ""},
		{"empty", "", mention, "Bot", ""},
		{"non-mention entity ignored", "hello there", []Entity{{Type: "clientInfo", Text: "hello"}}, "", "hello there"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractUserText(tc.text, tc.entities, tc.recipient))
		})
	}
}

func TestLocalConversationIDDefaults(t *testing.T) {
	assert.Equal(t, "default", (&Activity{}).LocalConversationID())
	assert.Equal(t, "conv-1", (&Activity{Conversation: &ConversationAccount{ID: "conv-1"}}).LocalConversationID())
}

func TestFeedbackValueObjectOrString(t *testing.T) {
	object := &Activity{Value: json.RawMessage(`{"action":"feedback","rating":"positive","conversation_id":"c1","message_id":"m1"}`)}
	fb, ok := object.Feedback()
	require.True(t, ok)
	assert.Equal(t, "positive", fb.Rating)
	assert.Equal(t, "c1", fb.ConversationID)

	str := &Activity{Value: json.RawMessage(`"{\"action\":\"feedback\",\"rating\":\"negative\",\"message_id\":\"m1\"}"`)}
	fb, ok = str.Feedback()
	require.True(t, ok)
	assert.Equal(t, "negative", fb.Rating)
	assert.Empty(t, fb.ConversationID)

	_, ok = (&Activity{Value: json.RawMessage(`{"action":"submit"}`)}).Feedback()
	assert.False(t, ok)
	_, ok = (&Activity{Value: json.RawMessage(`"not json"`)}).Feedback()
	assert.False(t, ok)
	_, ok = (&Activity{}).Feedback()
	assert.False(t, ok)
}

func TestFeedbackCardRoundTrip(t *testing.T) {
	card := FeedbackCard("c1", "m1")
	assert.Equal(t, ContentTypeHeroCard, card.ContentType)

	hero, ok := card.Content.(HeroCard)
	require.True(t, ok)
	require.Len(t, hero.Buttons, 2)
	assert.Equal(t, "messageBack", hero.Buttons[0].Type)

	// Teams echoes the button value back as the activity value.
	raw, err := json.Marshal(hero.Buttons[1].Value)
	require.NoError(t, err)
	fb, ok := (&Activity{Value: raw}).Feedback()
	require.True(t, ok)
	assert.Equal(t, "NEGATIVE", fb.Rating)
	assert.Equal(t, "c1", fb.ConversationID)
	assert.Equal(t, "m1", fb.MessageID)
}

func TestAddedMembersOtherThanBot(t *testing.T) {
	bot := &ChannelAccount{ID: "bot"}
	assert.False(t, (&Activity{Recipient: bot, MembersAdded: []ChannelAccount{{ID: "bot"}}}).AddedMembersOtherThanBot())
	assert.True(t, (&Activity{Recipient: bot, MembersAdded: []ChannelAccount{{ID: "bot"}, {ID: "user"}}}).AddedMembersOtherThanBot())
}

func TestConnectorSendReply(t *testing.T) {
	var (
		gotPath string
		got     Activity
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	inbound := &Activity{
		Type:         ActivityMessage,
		ID:           "act-1",
		ServiceURL:   srv.URL + "/",
		From:         &ChannelAccount{ID: "user"},
		Recipient:    &ChannelAccount{ID: "bot", Name: "Bot"},
		Conversation: &ConversationAccount{ID: "conv-1"},
	}
	connector := NewConnector(context.Background(), ConnectorConfig{}, nil)

	require.NoError(t, connector.Send(context.Background(), inbound.Reply("hello")))
	assert.Equal(t, "/v3/conversations/conv-1/activities/act-1", gotPath)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "act-1", got.ReplyToID)
	assert.Equal(t, "bot", got.From.ID)
	assert.Equal(t, "user", got.Recipient.ID)
}

func TestConnectorAuthenticates(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, BotFrameworkScope, r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"bot-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokens.Close()

	var auth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	connector := NewConnector(context.Background(), ConnectorConfig{AppID: "app", AppPassword: "pw", TokenURL: tokens.URL}, nil)
	activity := &Activity{Type: ActivityTyping, ServiceURL: api.URL, Conversation: &ConversationAccount{ID: "c"}}

	require.NoError(t, connector.Send(context.Background(), activity))
	assert.Equal(t, "Bearer bot-token", auth)
}

func TestConnectorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	connector := NewConnector(context.Background(), ConnectorConfig{}, nil)

	err := connector.Send(context.Background(), &Activity{ServiceURL: srv.URL, Conversation: &ConversationAccount{ID: "c"}})
	var transport *genie.TransportError
	require.ErrorAs(t, err, &transport)

	err = connector.Send(context.Background(), &Activity{})
	var validation *genie.ValidationError
	require.ErrorAs(t, err, &validation)
}
