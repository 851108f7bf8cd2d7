package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/tripsync/api"
	"github.com/c360studio/tripsync/config"
	"github.com/c360studio/tripsync/generation"
	"github.com/c360studio/tripsync/llm"
	"github.com/c360studio/tripsync/metrics"
	"github.com/c360studio/tripsync/model"
	"github.com/c360studio/tripsync/service"
	"github.com/c360studio/tripsync/storage"
	"github.com/c360studio/tripsync/workflow"
)

const shutdownTimeout = 30 * time.Second

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	// Storage
	store *storage.Store

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	agent  *service.Agent
	server *api.Server
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
	}
}

// Start initializes storage, the generator, the agent and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set %s)", config.EnvJWTSecret)
	}
	auth, err := api.NewJWTAuthenticator(a.cfg.Auth.JWTSecret, api.WithAudience(a.cfg.Auth.Audience))
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}

	if err := a.startStorage(ctx); err != nil {
		return fmt.Errorf("start storage: %w", err)
	}

	gen, err := a.buildGenerator()
	if err != nil {
		a.Shutdown()
		return fmt.Errorf("build generator: %w", err)
	}

	p := a.cfg.Pipeline
	a.agent = service.NewAgent(a.store, gen,
		service.WithLogger(a.logger),
		service.WithObserver(a.metrics),
		service.WithStageTimeout(a.cfg.Generation.StageTimeout),
		service.WithRecommendationConfig(workflow.RecommendationConfig{
			MinCandidates:       p.MinCandidates,
			MaxCandidates:       p.MaxCandidates,
			ResearchConcurrency: p.ResearchConcurrency,
		}),
		service.WithMaxRegenerations(p.MaxRegenIterations),
	)

	a.server = api.NewServer(a.agent, a.store, auth,
		api.WithLogger(a.logger),
		api.WithRequestObserver(a.metrics),
		api.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
		api.WithRateLimit(a.cfg.HTTP.RequestsPerSecond, a.cfg.HTTP.Burst),
		api.WithMembershipTTL(a.cfg.HTTP.MembershipTTL),
	)

	a.logger.Info("Components initialized",
		"storage", a.cfg.Storage.Backend,
		"generation", a.cfg.Generation.Backend)
	return nil
}

// Handler returns the HTTP handler. Start must have succeeded.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) startStorage(ctx context.Context) error {
	var backend storage.Backend
	switch a.cfg.Storage.Backend {
	case config.StorageBadger:
		b, err := storage.OpenBadger(storage.BadgerConfig{
			Path:     a.cfg.Storage.Badger.Path,
			InMemory: a.cfg.Storage.Badger.InMemory,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		backend = b
	default:
		if err := a.startNATS(); err != nil {
			a.Shutdown()
			return err
		}
		kv, err := storage.NewKVBackend(ctx, a.js)
		if err != nil {
			a.Shutdown()
			return err
		}
		backend = kv
	}

	a.store = storage.NewStore(backend)
	storage.InitGlobal(a.store)
	return nil
}

func (a *App) startNATS() error {
	natsCfg := a.cfg.Storage.NATS
	if natsCfg.URL != "" && !natsCfg.Embedded {
		a.logger.Info("Connecting to NATS", "url", natsCfg.URL)
		conn, err := nats.Connect(natsCfg.URL, nats.Name(appName))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		a.logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			StoreDir:  natsCfg.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}
		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			a.embeddedServer = nil
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js
	return nil
}

func (a *App) buildGenerator() (workflow.Generator, error) {
	opts := []generation.Option{
		generation.WithTemperature(a.cfg.Model.Temperature),
		generation.WithMaxTokens(a.cfg.Model.MaxTokens),
		generation.WithCandidateBounds(a.cfg.Pipeline.MinCandidates, a.cfg.Pipeline.MaxCandidates),
		generation.WithLogger(a.logger),
	}

	switch a.cfg.Generation.Backend {
	case config.BackendOpenAI:
		key := a.cfg.Generation.APIKey
		if key == "" {
			return nil, fmt.Errorf("generation.api_key is required for the openai backend (or set %s)", config.EnvOpenAIKey)
		}
		client := generation.NewOpenAIClient(key, a.cfg.Generation.BaseURL)
		return generation.NewOpenAIGenerator(client, a.cfg.Generation.Model, opts...), nil
	default:
		registry, err := a.cfg.BuildRegistry()
		if err != nil {
			return nil, err
		}
		model.InitGlobal(registry)
		client := llm.NewClient(registry,
			llm.WithLogger(a.logger),
			llm.WithCallRecorder(a.metrics),
		)
		return generation.NewLLMGenerator(client, opts...), nil
	}
}

// Shutdown waits for pending progress writes, then closes storage and NATS.
func (a *App) Shutdown() {
	if a.agent != nil {
		a.agent.Wait()
	}

	if a.store != nil {
		// The store is the global one; ResetGlobal closes it.
		if err := storage.ResetGlobal(); err != nil {
			a.logger.Warn("Failed to close storage", "error", err)
		}
		a.store = nil
	}

	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
		a.natsConn = nil
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return serve(cmd.Context(), cfg, slog.Default())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := NewApp(cfg, logger)
	if err := app.Start(signalCtx); err != nil {
		return err
	}
	defer app.Shutdown()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("TripSync ready", "version", Version, "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}

	logger.Info("TripSync shutdown complete")
	return nil
}
