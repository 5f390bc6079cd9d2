package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/genie-relay/internal/config"
	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/handler"
	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/internal/service"
	"github.com/capitalize-ai/genie-relay/internal/store"
	"github.com/capitalize-ai/genie-relay/internal/teams"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

type okRelay struct{}

func (okRelay) HandleActivity(context.Context, *teams.Activity) (*service.Result, error) {
	return &service.Result{Action: service.ActionIgnored}, nil
}

func testRouter(cfg *config.Config) http.Handler {
	log := logger.Nop()
	return newRouter(cfg, routes{
		status:   handler.NewStatusHandler(handler.StatusInfo{Host: "https://h", SpaceID: "s"}, log),
		health:   handler.NewHealthHandler(nil, nil, log),
		messages: handler.NewMessageHandler(okRelay{}, log),
	}, log)
}

const typingActivity = `{"type":"typing","conversation":{"id":"c"}}`

func TestRouterRoutes(t *testing.T) {
	srv := httptest.NewServer(testRouter(&config.Config{RateLimitRequests: 100, RateLimitWindow: time.Minute}))
	defer srv.Close()

	for _, path := range []string{"/", "/api/health", "/ready", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader(typingActivity))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	resp, err = http.Get(srv.URL + "/api/messages")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRouterRateLimitsMessages(t *testing.T) {
	router := testRouter(&config.Config{RateLimitRequests: 1, RateLimitWindow: time.Minute})

	var codes []int
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(typingActivity))
		req.RemoteAddr = "192.0.2.10:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterRequiresTokenWhenConfigured(t *testing.T) {
	router := testRouter(&config.Config{InboundJWTSecret: "s3cret", RateLimitRequests: 10, RateLimitWindow: time.Minute})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(typingActivity)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenBindings(t *testing.T) {
	ctx := context.Background()

	memory, err := openBindings(ctx, &config.Config{BindingStore: config.StoreMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, memory)

	sqlite, err := openBindings(ctx, &config.Config{BindingStore: config.StoreSQLite, BindingStoreDSN: t.TempDir() + "/b.db"}, nil)
	require.NoError(t, err)
	defer sqlite.Close()
	assert.IsType(t, &store.GormStore{}, sqlite)

	_, err = openBindings(ctx, &config.Config{BindingStore: config.StoreNATS}, nil)
	assert.Error(t, err)
}

type fakeAsker struct {
	started   string
	continued string
	err       error
}

func (f *fakeAsker) StartConversation(_ context.Context, q string) (*model.RemoteExchange, error) {
	f.started = q
	if f.err != nil {
		return nil, f.err
	}
	return model.NewExchange("conv-1", "msg-1", q), nil
}

func (f *fakeAsker) ContinueConversation(_ context.Context, cid, q string) (*model.RemoteExchange, error) {
	f.continued = cid
	return model.NewExchange(cid, "msg-2", q), nil
}

type staticSource map[string]any

func (s staticSource) GetMessage(context.Context, string, string) (map[string]any, error) {
	return s, nil
}

func testPoller(payload map[string]any) *genie.Poller {
	p := genie.NewPoller(staticSource(payload), nil, logger.Nop())
	p.MaxAttempts = 2
	p.Interval = time.Millisecond
	return p
}

func TestAskPrintsAnswer(t *testing.T) {
	payload := map[string]any{
		"status":      "COMPLETED",
		"attachments": []any{map[string]any{"text": map[string]any{"content": "There were 42 orders."}}},
	}
	client := &fakeAsker{}
	var out bytes.Buffer

	err := ask(context.Background(), &out, client, testPoller(payload), "", "  how many orders?  ")
	require.NoError(t, err)
	assert.Equal(t, "how many orders?", client.started)
	assert.Contains(t, out.String(), "There were 42 orders.")
	assert.Contains(t, out.String(), "conversation: conv-1")

	out.Reset()
	require.NoError(t, ask(context.Background(), &out, client, testPoller(payload), "conv-9", "and yesterday?"))
	assert.Equal(t, "conv-9", client.continued)
}

func TestAskFailures(t *testing.T) {
	var out bytes.Buffer
	var validation *genie.ValidationError
	require.ErrorAs(t, ask(context.Background(), &out, &fakeAsker{}, testPoller(nil), "", "   "), &validation)

	out.Reset()
	err := ask(context.Background(), &out, &fakeAsker{}, testPoller(map[string]any{"status": "EXECUTING_QUERY"}), "", "slow question")
	var timeout *genie.PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Contains(t, out.String(), genie.MsgTimeout)

	out.Reset()
	err = ask(context.Background(), &out, &fakeAsker{err: genie.ErrIncompleteStart}, testPoller(nil), "", "q")
	require.ErrorIs(t, err, genie.ErrIncompleteStart)
	assert.Contains(t, out.String(), genie.MsgIncompleteStart)
}
