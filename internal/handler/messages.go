// Package handler implements the relay's HTTP endpoints.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/middleware"
	"github.com/capitalize-ai/genie-relay/internal/service"
	"github.com/capitalize-ai/genie-relay/internal/teams"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

// maxActivityBytes bounds an inbound activity body.
const maxActivityBytes = 1 << 20

// ActivityHandler processes a decoded chat activity.
type ActivityHandler interface {
	HandleActivity(ctx context.Context, a *teams.Activity) (*service.Result, error)
}

// MessageHandler handles the Bot Framework messaging endpoint.
type MessageHandler struct {
	relay  ActivityHandler
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(relay ActivityHandler, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		relay:  relay,
		logger: log.Named("messages"),
	}
}

// Handle handles POST /api/messages
func (h *MessageHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.With(zap.String("correlation_id", logger.CorrelationID(ctx)))

	var activity teams.Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes)).Decode(&activity); err != nil {
		writeError(w, http.StatusBadRequest, "invalid activity body")
		return
	}

	if err := middleware.ValidateActivity(&activity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.relay.HandleActivity(ctx, &activity)
	if err != nil {
		var validation *genie.ValidationError
		if errors.As(err, &validation) {
			writeError(w, http.StatusBadRequest, validation.Error())
			return
		}
		log.Error("activity failed",
			zap.String("type", activity.Type),
			zap.String("conversation_id", activity.LocalConversationID()),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to process activity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}
