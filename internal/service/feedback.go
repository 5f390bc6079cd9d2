package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
	"github.com/capitalize-ai/genie-relay/pkg/metrics"
)

// FeedbackClient records ratings with the remote service.
type FeedbackClient interface {
	SendFeedback(ctx context.Context, conversationID, messageID string, rating model.Rating) error
}

// FeedbackService validates and forwards feedback button clicks.
type FeedbackService struct {
	client FeedbackClient
	logger *logger.Logger
}

// NewFeedbackService creates a FeedbackService.
func NewFeedbackService(client FeedbackClient, log *logger.Logger) *FeedbackService {
	return &FeedbackService{client: client, logger: log.Named("feedback")}
}

// SubmitFeedback sends ev to the remote service. Incomplete events and
// unknown ratings fail with a *genie.ValidationError and are never sent.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, ev model.FeedbackEvent) error {
	var missing []string
	if strings.TrimSpace(ev.Rating) == "" {
		missing = append(missing, "rating")
	}
	if strings.TrimSpace(ev.ConversationID) == "" {
		missing = append(missing, "conversation_id")
	}
	if strings.TrimSpace(ev.MessageID) == "" {
		missing = append(missing, "message_id")
	}
	if len(missing) > 0 {
		metrics.FeedbackTotal.WithLabelValues("unknown", "invalid").Inc()
		s.logger.Warn("invalid feedback, missing fields", zap.Strings("fields", missing))
		return &genie.ValidationError{Fields: missing, Reason: "feedback is missing required fields"}
	}

	rating, ok := model.NormalizeRating(ev.Rating)
	if !ok {
		metrics.FeedbackTotal.WithLabelValues("unknown", "invalid").Inc()
		return &genie.ValidationError{Fields: []string{"rating"}, Reason: "rating must be POSITIVE or NEGATIVE"}
	}

	if err := s.client.SendFeedback(ctx, ev.ConversationID, ev.MessageID, rating); err != nil {
		metrics.FeedbackTotal.WithLabelValues(string(rating), "error").Inc()
		s.logger.Error("sending feedback", zap.String("message_id", ev.MessageID), zap.Error(err))
		return err
	}

	metrics.FeedbackTotal.WithLabelValues(string(rating), "recorded").Inc()
	s.logger.Info("feedback recorded", zap.String("rating", string(rating)), zap.String("message_id", ev.MessageID))
	return nil
}
