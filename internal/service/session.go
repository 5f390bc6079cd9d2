// Package service holds the relay's business logic: routing chat messages to
// Genie conversations, waiting for answers and recording feedback.
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
	"github.com/capitalize-ai/genie-relay/pkg/metrics"
)

// BindingStore maps chat conversations to remote conversations.
// Implementations must be safe for concurrent use.
type BindingStore interface {
	Get(ctx context.Context, localID string) (remoteID string, ok bool, err error)
	// PutIfAbsent stores the binding unless one exists and returns the
	// binding in effect afterwards.
	PutIfAbsent(ctx context.Context, localID, remoteID string) (effective string, stored bool, err error)
	Close() error
}

// ConversationClient starts and continues remote conversations.
type ConversationClient interface {
	StartConversation(ctx context.Context, question string) (*model.RemoteExchange, error)
	ContinueConversation(ctx context.Context, conversationID, question string) (*model.RemoteExchange, error)
}

// SessionService routes each chat message to the remote conversation bound to
// its chat conversation.
type SessionService struct {
	client   ConversationClient
	bindings BindingStore
	logger   *logger.Logger
}

// NewSessionService creates a SessionService.
func NewSessionService(client ConversationClient, bindings BindingStore, log *logger.Logger) *SessionService {
	return &SessionService{
		client:   client,
		bindings: bindings,
		logger:   log.Named("session"),
	}
}

// ResolveAndRoute sends text to the remote conversation bound to localID, or
// starts a new one and binds it. The binding is written only after a
// successful start; any error leaves bindings untouched.
func (s *SessionService) ResolveAndRoute(ctx context.Context, localID, text string) (*model.RemoteExchange, error) {
	log := s.logger.WithConversation(logger.CorrelationID(ctx), localID)

	remoteID, bound, err := s.bindings.Get(ctx, localID)
	if err != nil {
		metrics.BindingsTotal.WithLabelValues("get", "error").Inc()
		return nil, err
	}

	if bound {
		metrics.BindingsTotal.WithLabelValues("get", "hit").Inc()
		log.Info("continuing Genie conversation", zap.String("genie_conversation_id", remoteID))
		return s.client.ContinueConversation(ctx, remoteID, text)
	}
	metrics.BindingsTotal.WithLabelValues("get", "miss").Inc()

	log.Info("starting new Genie conversation")
	ex, err := s.client.StartConversation(ctx, text)
	if err != nil {
		return nil, err
	}

	effective, stored, err := s.bindings.PutIfAbsent(ctx, localID, ex.ConversationID)
	switch {
	case err != nil:
		// The exchange is already running; answer it and bind on a later turn.
		metrics.BindingsTotal.WithLabelValues("put", "error").Inc()
		log.Error("storing conversation binding", zap.Error(err))
	case stored:
		metrics.BindingsTotal.WithLabelValues("put", "stored").Inc()
		log.Info("stored Genie conversation", zap.String("genie_conversation_id", ex.ConversationID))
	default:
		metrics.BindingsTotal.WithLabelValues("put", "conflict").Inc()
		log.Warn("conversation was bound concurrently, keeping existing binding",
			zap.String("existing", effective),
			zap.String("discarded", ex.ConversationID),
		)
	}
	return ex, nil
}
