// Package genie talks to the Databricks Genie conversation API: it starts and
// continues conversations, polls message status, assembles answers from
// attachments and submits feedback.
package genie

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
	"github.com/capitalize-ai/genie-relay/pkg/metrics"
	"github.com/capitalize-ai/genie-relay/pkg/tracing"
)

const (
	maxResponseBytes  = 8 << 20
	maxErrorBodyChars = 500

	defaultRequestTimeout = 60 * time.Second
	defaultReadTimeout    = 10 * time.Second
)

// Config holds Genie client settings.
type Config struct {
	Host    string
	SpaceID string
	// ClientID is the service principal id, only used in guidance text.
	ClientID string
	// RequestTimeout bounds start/continue calls.
	RequestTimeout time.Duration
	// ReadTimeout bounds status polls, query-result fetches and feedback.
	ReadTimeout time.Duration
}

// Client is a Genie REST client scoped to one space.
type Client struct {
	baseURL        string
	spaceID        string
	clientID       string
	requestTimeout time.Duration
	readTimeout    time.Duration
	httpClient     *http.Client
	logger         *logger.Logger
	tracer         trace.Tracer
}

// NewClient creates a Genie client. httpClient must attach credentials; see
// NewHTTPClient.
func NewClient(cfg Config, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.Global()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	host := strings.TrimRight(cfg.Host, "/")
	log.Info("initialized Genie client", zap.String("space_id", cfg.SpaceID))

	return &Client{
		baseURL:        host + "/api/2.0/genie/spaces/" + cfg.SpaceID,
		spaceID:        cfg.SpaceID,
		clientID:       cfg.ClientID,
		requestTimeout: cfg.RequestTimeout,
		readTimeout:    cfg.ReadTimeout,
		httpClient:     httpClient,
		logger:         log.Named("genie"),
		tracer:         tracing.Tracer("genie"),
	}
}

// SpaceID returns the Genie space the client talks to.
func (c *Client) SpaceID() string {
	return c.spaceID
}

type contentRequest struct {
	Content string `json:"content"`
}

type startResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	ID             string `json:"id"`
}

type feedbackRequest struct {
	Rating model.Rating `json:"rating"`
}

// StartConversation asks question in a new remote conversation.
func (c *Client) StartConversation(ctx context.Context, question string) (*model.RemoteExchange, error) {
	c.logger.Info("asking Genie", zap.String("question", logger.Truncate(question, 100)))

	var resp startResponse
	if err := c.do(ctx, OpStart, http.MethodPost, "/start-conversation", &contentRequest{Content: question}, &resp, c.requestTimeout); err != nil {
		return nil, err
	}
	if resp.ConversationID == "" || resp.MessageID == "" {
		c.logger.Error("no conversation_id or message_id in start response")
		return nil, ErrIncompleteStart
	}
	return model.NewExchange(resp.ConversationID, resp.MessageID, question), nil
}

// ContinueConversation posts a follow-up question to an existing conversation.
func (c *Client) ContinueConversation(ctx context.Context, conversationID, question string) (*model.RemoteExchange, error) {
	c.logger.Info("continuing conversation", zap.String("conversation_id", conversationID))

	var resp startResponse
	path := "/conversations/" + conversationID + "/messages"
	if err := c.do(ctx, OpContinue, http.MethodPost, path, &contentRequest{Content: question}, &resp, c.requestTimeout); err != nil {
		return nil, err
	}
	messageID := resp.MessageID
	if messageID == "" {
		// Older API versions only return the message under "id".
		messageID = resp.ID
	}
	if messageID == "" {
		return nil, errors.Wrap(ErrIncompleteStart, "continue conversation")
	}
	return model.NewExchange(conversationID, messageID, question), nil
}

// GetMessage fetches the raw message payload, including status and attachments.
func (c *Client) GetMessage(ctx context.Context, conversationID, messageID string) (map[string]any, error) {
	var payload map[string]any
	path := "/conversations/" + conversationID + "/messages/" + messageID
	if err := c.do(ctx, OpGetMessage, http.MethodGet, path, nil, &payload, c.readTimeout); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}

type queryResultResponse struct {
	StatementResponse *struct {
		Manifest struct {
			Schema struct {
				Columns []struct {
					Name string `json:"name"`
				} `json:"columns"`
			} `json:"schema"`
		} `json:"manifest"`
		Result *struct {
			DataArray [][]any `json:"data_array"`
		} `json:"result"`
	} `json:"statement_response"`
}

// GetQueryResult fetches the tabular result behind an attachment. A response
// without a statement result yields an empty QueryResult.
func (c *Client) GetQueryResult(ctx context.Context, conversationID, messageID, attachmentID string) (*model.QueryResult, error) {
	var resp queryResultResponse
	path := "/conversations/" + conversationID + "/messages/" + messageID + "/attachments/" + attachmentID + "/query-result"
	if err := c.do(ctx, OpQueryResult, http.MethodGet, path, nil, &resp, c.readTimeout); err != nil {
		return nil, err
	}

	result := &model.QueryResult{}
	stmt := resp.StatementResponse
	if stmt == nil {
		return result, nil
	}
	for i, col := range stmt.Manifest.Schema.Columns {
		name := col.Name
		if name == "" {
			name = "col" + strconv.Itoa(i)
		}
		result.Columns = append(result.Columns, name)
	}
	if stmt.Result != nil {
		result.Rows = stmt.Result.DataArray
	}
	return result, nil
}

// SendFeedback records a rating for a message.
func (c *Client) SendFeedback(ctx context.Context, conversationID, messageID string, rating model.Rating) error {
	c.logger.Info("sending feedback",
		zap.String("rating", string(rating)),
		zap.String("message_id", messageID),
	)
	path := "/conversations/" + conversationID + "/messages/" + messageID + "/feedback"
	return c.do(ctx, OpFeedback, http.MethodPost, path, &feedbackRequest{Rating: rating}, nil, c.readTimeout)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any, timeout time.Duration) (err error) {
	ctx, span := c.tracer.Start(ctx, "genie."+op, trace.WithAttributes(
		attribute.String("genie.space_id", c.spaceID),
		attribute.String("http.method", method),
	))
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordGenieCall(op, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "genie %s: marshal request", op)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "genie %s: build request", op)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			c.logger.Error("credential exchange failed", zap.String("op", op), zap.Error(err))
		}
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return c.remoteError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &TransportError{Op: op, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (c *Client) remoteError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	body := strings.TrimSpace(string(raw))

	rerr := &RemoteServiceError{
		Op:         op,
		StatusCode: resp.StatusCode,
		SpaceID:    c.spaceID,
		ClientID:   c.clientID,
	}

	var parsed apiError
	if err := json.Unmarshal(raw, &parsed); err == nil {
		rerr.Code = parsed.ErrorCode
		rerr.Message = parsed.Message
		if rerr.Message == "" {
			rerr.Message = body
		}
	} else {
		rerr.Message = logger.Truncate(body, maxErrorBodyChars)
	}

	c.logger.Error("Genie API error",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.String("error_code", rerr.Code),
		zap.String("body", logger.Truncate(body, 2000)),
	)
	return rerr
}
