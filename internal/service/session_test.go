package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/internal/store"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

func TestResolveAndRouteReusesBinding(t *testing.T) {
	g := &fakeGenie{}
	bindings := store.NewMemoryStore()
	s := NewSessionService(g, bindings, logger.Nop())
	ctx := context.Background()

	first, err := s.ResolveAndRoute(ctx, "teams-1", "what is revenue?")
	require.NoError(t, err)
	assert.Equal(t, "genie-conv-1", first.ConversationID)

	second, err := s.ResolveAndRoute(ctx, "teams-1", "and by region?")
	require.NoError(t, err)
	assert.Equal(t, "genie-conv-1", second.ConversationID)
	assert.Equal(t, "msg-continue", second.MessageID)

	assert.Equal(t, []string{"what is revenue?"}, g.starts)
	assert.Equal(t, []string{"genie-conv-1"}, g.continues)
}

func TestResolveAndRouteStartErrorLeavesNoBinding(t *testing.T) {
	g := &fakeGenie{startErr: &genie.RemoteServiceError{Op: genie.OpStart, StatusCode: 403, Message: "denied"}}
	bindings := store.NewMemoryStore()
	s := NewSessionService(g, bindings, logger.Nop())

	_, err := s.ResolveAndRoute(context.Background(), "teams-1", "q")
	var remote *genie.RemoteServiceError
	require.ErrorAs(t, err, &remote)

	_, ok, err := bindings.Get(context.Background(), "teams-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, bindings.Len())
}

func TestResolveAndRouteContinueErrorKeepsBinding(t *testing.T) {
	g := &fakeGenie{continueErr: &genie.RemoteServiceError{Op: genie.OpContinue, StatusCode: 404}}
	bindings := store.NewMemoryStore()
	_, _, err := bindings.PutIfAbsent(context.Background(), "teams-1", "genie-old")
	require.NoError(t, err)
	s := NewSessionService(g, bindings, logger.Nop())

	_, err = s.ResolveAndRoute(context.Background(), "teams-1", "q")
	require.Error(t, err)

	remote, ok, err := bindings.Get(context.Background(), "teams-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "genie-old", remote)
	assert.Empty(t, g.starts)
}

// raceStore simulates a concurrent request binding the same conversation
// between our Get and PutIfAbsent.
type raceStore struct {
	*store.MemoryStore
}

func (s raceStore) Get(ctx context.Context, localID string) (string, bool, error) {
	_, _, _ = s.MemoryStore.PutIfAbsent(ctx, localID, "genie-winner")
	return "", false, nil
}

func TestResolveAndRouteKeepsConcurrentBinding(t *testing.T) {
	g := &fakeGenie{nextConv: "genie-loser"}
	bindings := raceStore{store.NewMemoryStore()}
	s := NewSessionService(g, bindings, logger.Nop())

	ex, err := s.ResolveAndRoute(context.Background(), "teams-1", "q")
	require.NoError(t, err)
	assert.Equal(t, "genie-loser", ex.ConversationID)

	remote, _, _ := bindings.MemoryStore.Get(context.Background(), "teams-1")
	assert.Equal(t, "genie-winner", remote)
}

func TestSubmitFeedbackValidation(t *testing.T) {
	g := &fakeGenie{}
	s := NewFeedbackService(g, logger.Nop())

	err := s.SubmitFeedback(context.Background(), model.FeedbackEvent{ConversationID: "c1", Rating: "positive"})
	var validation *genie.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"message_id"}, validation.Fields)

	err = s.SubmitFeedback(context.Background(), model.FeedbackEvent{ConversationID: "c1", MessageID: "m1", Rating: "meh"})
	require.ErrorAs(t, err, &validation)

	assert.Empty(t, g.feedback)
}

func TestSubmitFeedbackNormalizesRating(t *testing.T) {
	g := &fakeGenie{}
	s := NewFeedbackService(g, logger.Nop())

	require.NoError(t, s.SubmitFeedback(context.Background(), model.FeedbackEvent{ConversationID: "c1", MessageID: "m1", Rating: "positive"}))
	assert.Equal(t, []model.Rating{model.RatingPositive}, g.feedback)
}
