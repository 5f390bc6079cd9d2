package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "Databricks Genie Teams Bot"

// Connection reports broker connectivity.
type Connection interface {
	IsConnected() bool
}

// StreamStats refreshes event stream gauges.
type StreamStats interface {
	RecordStreamSize(ctx context.Context) (uint64, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	conn   Connection
	stream StreamStats
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. conn and stream are nil when
// NATS is not configured.
func NewHealthHandler(conn Connection, stream StreamStats, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		conn:   conn,
		stream: stream,
		logger: log.Named("health"),
	}
}

// Health handles GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
		})
		return
	}

	if !h.conn.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	resp := map[string]any{"status": "ready"}
	if h.stream != nil {
		msgs, err := h.stream.RecordStreamSize(r.Context())
		if err != nil {
			h.logger.Warn("reading event stream size", zap.Error(err))
		} else {
			resp["events"] = msgs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
