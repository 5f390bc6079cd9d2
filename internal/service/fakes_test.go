package service

import (
	"context"
	"errors"
	"sync"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/internal/store"
	"github.com/capitalize-ai/genie-relay/internal/teams"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

type fakeGenie struct {
	mu        sync.Mutex
	starts    []string
	continues []string // conversation ids
	feedback  []model.Rating

	startErr    error
	continueErr error
	feedbackErr error
	nextConv    string
}

func (g *fakeGenie) StartConversation(_ context.Context, question string) (*model.RemoteExchange, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.starts = append(g.starts, question)
	if g.startErr != nil {
		return nil, g.startErr
	}
	conv := g.nextConv
	if conv == "" {
		conv = "genie-conv-1"
	}
	return model.NewExchange(conv, "msg-start", question), nil
}

func (g *fakeGenie) ContinueConversation(_ context.Context, conversationID, question string) (*model.RemoteExchange, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.continues = append(g.continues, conversationID)
	if g.continueErr != nil {
		return nil, g.continueErr
	}
	return model.NewExchange(conversationID, "msg-continue", question), nil
}

func (g *fakeGenie) SendFeedback(_ context.Context, _, _ string, rating model.Rating) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feedback = append(g.feedback, rating)
	return g.feedbackErr
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []*teams.Activity
	err   error
	errOn string // activity type that fails; empty fails all when err is set
}

func (s *fakeSender) Send(_ context.Context, a *teams.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && (s.errOn == "" || s.errOn == a.Type) {
		return s.err
	}
	s.sent = append(s.sent, a)
	return nil
}

// Texts returns the text of every message sent, skipping typing indicators
// and cards.
func (s *fakeSender) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.sent {
		if a.Type == teams.ActivityMessage && len(a.Attachments) == 0 {
			out = append(out, a.Text)
		}
	}
	return out
}

func (s *fakeSender) Cards() []teams.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []teams.Attachment
	for _, a := range s.sent {
		out = append(out, a.Attachments...)
	}
	return out
}

type fakeWaiter struct {
	answer *genie.Answer
	err    error
}

func (w *fakeWaiter) AwaitCompletion(_ context.Context, conversationID, messageID string) (*genie.Answer, error) {
	if w.err != nil {
		return nil, w.err
	}
	a := *w.answer
	a.Exchange = model.NewExchange(conversationID, messageID, "")
	return &a, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.RelayEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, event *model.RelayEvent) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, *event)
	return uint64(len(p.events)), nil
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unavailable")
}

type relayFixture struct {
	genie     *fakeGenie
	bindings  *store.MemoryStore
	sender    *fakeSender
	waiter    *fakeWaiter
	publisher *fakePublisher
	relay     *Relay
}

func newRelayFixture() *relayFixture {
	f := &relayFixture{
		genie:     &fakeGenie{},
		bindings:  store.NewMemoryStore(),
		sender:    &fakeSender{},
		waiter:    &fakeWaiter{answer: &genie.Answer{Outcome: genie.OutcomeCompleted, Text: "Revenue was $10M.", Attempts: 2}},
		publisher: &fakePublisher{},
	}
	log := logger.Nop()
	f.relay = NewRelay(
		NewSessionService(f.genie, f.bindings, log),
		f.waiter,
		NewFeedbackService(f.genie, log),
		f.sender,
		f.publisher,
		log,
	)
	return f
}

func messageActivity(conversationID, text string) *teams.Activity {
	return &teams.Activity{
		Type:         teams.ActivityMessage,
		ID:           "act-1",
		ServiceURL:   "https://smba.example.com/",
		Text:         text,
		From:         &teams.ChannelAccount{ID: "user-1", Name: "Ada"},
		Recipient:    &teams.ChannelAccount{ID: "bot-1", Name: "Genie"},
		Conversation: &teams.ConversationAccount{ID: conversationID},
	}
}
