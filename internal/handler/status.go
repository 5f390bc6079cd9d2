package handler

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Service}}</title></head>
<body>
<h1>{{.Service}}</h1>
<p>Status: running</p>
<ul>
<li>Databricks host: {{.Host}}</li>
<li>Genie space: {{.SpaceID}}</li>
<li>Bot app id: {{.AppID}}</li>
</ul>
<p>Messaging endpoint: <code>/api/messages</code></p>
</body>
</html>
`))

// StatusInfo is shown on the status page.
type StatusInfo struct {
	Host    string
	SpaceID string
	AppID   string
}

// StatusHandler renders a human-readable status page.
type StatusHandler struct {
	info   StatusInfo
	logger *logger.Logger
}

// NewStatusHandler creates a status handler. The app id is shortened so the
// page does not expose it in full.
func NewStatusHandler(info StatusInfo, log *logger.Logger) *StatusHandler {
	info.AppID = maskID(info.AppID)
	return &StatusHandler{info: info, logger: log.Named("status")}
}

// Page handles GET /
func (h *StatusHandler) Page(w http.ResponseWriter, r *http.Request) {
	data := struct {
		StatusInfo
		Service string
	}{h.info, ServiceName}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(w, data); err != nil {
		h.logger.Error("rendering status page", zap.Error(err))
	}
}

func maskID(id string) string {
	if id == "" {
		return "not configured"
	}
	r := []rune(id)
	if len(r) <= 8 {
		return id
	}
	return string(r[:8]) + "..."
}
