package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/config"
	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/handler"
	"github.com/capitalize-ai/genie-relay/internal/middleware"
	natsclient "github.com/capitalize-ai/genie-relay/internal/nats"
	"github.com/capitalize-ai/genie-relay/internal/service"
	"github.com/capitalize-ai/genie-relay/internal/store"
	"github.com/capitalize-ai/genie-relay/internal/teams"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
	"github.com/capitalize-ai/genie-relay/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Bot Framework messaging endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return err
	}

	log.Info("starting relay server")

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "genie-relay", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	var (
		natsClient *natsclient.Client
		streams    *natsclient.StreamManager
	)
	if cfg.NATSURL != "" {
		var err error
		natsClient, err = connectNATS(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		streams = natsclient.NewStreamManager(natsClient)
		if err := streams.EnsureStream(ctx); err != nil {
			return errors.Wrap(err, "ensure stream")
		}
	}

	bindings, err := openBindings(ctx, cfg, natsClient)
	if err != nil {
		return err
	}
	defer func() {
		if err := bindings.Close(); err != nil {
			log.Warn("closing binding store", zap.Error(err))
		}
	}()
	log.Info("binding store ready", zap.String("kind", cfg.BindingStore))

	client := newGenieClient(ctx, cfg, log)
	poller := newPoller(client, cfg, log)
	connector := teams.NewConnector(ctx, teams.ConnectorConfig{
		AppID:       cfg.MicrosoftAppID,
		AppPassword: cfg.MicrosoftAppPassword,
		TenantID:    cfg.MicrosoftAppTenantID,
	}, log)

	var events service.EventPublisher
	if streams != nil {
		events = streams
	}
	relay := service.NewRelay(
		service.NewSessionService(client, bindings, log),
		poller,
		service.NewFeedbackService(client, log),
		connector,
		events,
		log,
	)

	h := routes{
		status: handler.NewStatusHandler(handler.StatusInfo{
			Host:    cfg.DatabricksHost,
			SpaceID: cfg.GenieSpaceID,
			AppID:   cfg.MicrosoftAppID,
		}, log),
		messages: handler.NewMessageHandler(relay, log),
	}
	if natsClient != nil {
		h.health = handler.NewHealthHandler(natsClient, streams, log)
	} else {
		h.health = handler.NewHealthHandler(nil, nil, log)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, h, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-serverErr:
		return errors.Wrap(err, "server error")
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

type routes struct {
	status   *handler.StatusHandler
	health   *handler.HealthHandler
	messages *handler.MessageHandler
}

func newRouter(cfg *config.Config, h routes, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)

	// Browser-facing pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS())
		r.Get("/", h.status.Page)
		r.Get("/api/health", h.health.Health)
		r.Get("/ready", h.health.Ready)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.InboundJWTSecret != "" {
			r.Use(middleware.Auth(cfg.InboundJWTSecret))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/api/messages", h.messages.Handle)
	})

	return r
}

func connectNATS(ctx context.Context, cfg *config.Config, log *logger.Logger) (*natsclient.Client, error) {
	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return nil, errors.Wrap(err, "connect to NATS")
	}
	return client, nil
}

// openBindings returns the configured binding store. natsClient is nil unless
// NATS_URL is set.
func openBindings(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client) (service.BindingStore, error) {
	switch cfg.BindingStore {
	case config.StoreNATS:
		if natsClient == nil {
			return nil, errors.New("nats binding store requires NATS_URL")
		}
		return natsclient.NewKVStore(ctx, natsClient)
	case config.StoreSQLite, config.StorePostgres:
		return store.NewGormStore(cfg.BindingStore, cfg.BindingStoreDSN)
	default:
		return store.NewMemoryStore(), nil
	}
}

func newGenieClient(ctx context.Context, cfg *config.Config, log *logger.Logger) *genie.Client {
	ts := genie.NewTokenSource(ctx, genie.CredentialConfig{
		TenantID:     cfg.DatabricksTenantID,
		ClientID:     cfg.DatabricksClientID,
		ClientSecret: cfg.DatabricksClientSecret,
	})
	return genie.NewClient(genie.Config{
		Host:           cfg.DatabricksHost,
		SpaceID:        cfg.GenieSpaceID,
		ClientID:       cfg.DatabricksClientID,
		RequestTimeout: cfg.RequestTimeout,
	}, genie.NewHTTPClient(ts), log)
}

func newPoller(client *genie.Client, cfg *config.Config, log *logger.Logger) *genie.Poller {
	poller := genie.NewPoller(client, genie.NewAssembler(client, cfg.DebugRawResponses, log), log)
	poller.MaxAttempts = cfg.PollMaxAttempts
	poller.Interval = cfg.PollInterval
	return poller
}
