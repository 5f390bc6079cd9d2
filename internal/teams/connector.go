package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

const (
	// BotFrameworkScope is the scope of tokens accepted by the connector.
	BotFrameworkScope = "https://api.botframework.com/.default"
	// DefaultBotTenant issues tokens for multi-tenant bots.
	DefaultBotTenant = "botframework.com"

	opSendActivity = "send_activity"
	sendTimeout    = 15 * time.Second
)

// Sender delivers outbound activities to the chat platform.
type Sender interface {
	Send(ctx context.Context, activity *Activity) error
}

// ConnectorConfig holds the bot's Bot Framework registration.
type ConnectorConfig struct {
	AppID       string
	AppPassword string
	TenantID    string
	// TokenURL overrides the Azure AD endpoint; used in tests.
	TokenURL string
}

// Connector posts activities to the Bot Framework connector service.
type Connector struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewConnector creates a Connector. Without an app id, requests are sent
// unauthenticated, which is what the Bot Framework Emulator expects.
func NewConnector(ctx context.Context, cfg ConnectorConfig, log *logger.Logger) *Connector {
	if log == nil {
		log = logger.Global()
	}

	client := &http.Client{Timeout: sendTimeout}
	if cfg.AppID != "" {
		tenant := cfg.TenantID
		if tenant == "" {
			tenant = DefaultBotTenant
		}
		ts := genie.NewTokenSource(ctx, genie.CredentialConfig{
			TenantID:     tenant,
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppPassword,
			Scope:        BotFrameworkScope,
			TokenURL:     cfg.TokenURL,
		})
		client = genie.NewHTTPClient(ts)
		client.Timeout = sendTimeout
	} else {
		log.Warn("no bot app id configured, connector requests are unauthenticated")
	}

	return &Connector{httpClient: client, logger: log.Named("connector")}
}

// Send posts activity to its conversation, as a reply when ReplyToID is set.
func (c *Connector) Send(ctx context.Context, activity *Activity) error {
	if activity.ServiceURL == "" || activity.Conversation == nil || activity.Conversation.ID == "" {
		return &genie.ValidationError{Fields: []string{"serviceUrl", "conversation.id"}, Reason: "activity has no destination"}
	}

	endpoint := strings.TrimRight(activity.ServiceURL, "/") + "/v3/conversations/" +
		url.PathEscape(activity.Conversation.ID) + "/activities"
	if activity.ReplyToID != "" {
		endpoint += "/" + url.PathEscape(activity.ReplyToID)
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return errors.Wrap(err, "marshal activity")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build connector request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &genie.TransportError{Op: opSendActivity, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("connector rejected activity",
			zap.Int("status", resp.StatusCode),
			zap.String("type", activity.Type),
			zap.String("body", logger.Truncate(string(raw), 500)),
		)
		return &genie.TransportError{
			Op:  opSendActivity,
			Err: errors.Errorf("connector returned HTTP %d", resp.StatusCode),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
