// Natal chart bot server: collects birth data over chat, generates the chart,
// and destroys collected data on every exit path.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"natalbot/internal/chart"
	"natalbot/internal/config"
	"natalbot/internal/flow"
	"natalbot/internal/gateway"
	"natalbot/internal/geocode"
	"natalbot/internal/identity"
	"natalbot/internal/metrics"
	"natalbot/internal/middleware"
	"natalbot/internal/session"
	"natalbot/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Anonymous usage statistics. Conversation data never reaches this store.
	usage, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize statistics database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := usage.Close(); closeErr != nil {
			slog.Error("Failed to close statistics database", "error", closeErr)
		}
	}()

	if err := usage.Ping(context.Background()); err != nil {
		slog.Error("Statistics database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Statistics database connected")

	sessions := session.New(cfg.SessionTimeout)
	m := metrics.New(func() float64 { return float64(sessions.Len()) })

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	geocoder := geocode.NewClient(cfg.GeocoderURL, geocode.WithHTTPClient(httpClient))
	orchestrator := chart.NewOrchestrator(
		chart.NewEngineClient(cfg.ChartEngineURL, httpClient),
		chart.NewRasterClient(cfg.RasterURL, httpClient),
	)

	registry := gateway.NewRegistry()
	mailbox := gateway.NewMailbox()
	replier := gateway.NewWSReplier(registry, mailbox)

	engine := flow.New(flow.Deps{
		Store:     sessions,
		Geo:       geocoder,
		Generator: orchestrator,
		Replier:   replier,
		Usage:     usage,
		Metrics:   m,
	}, flow.Options{
		MaxRetries:          cfg.MaxRetries,
		MinBirthYear:        cfg.MinBirthYear,
		ConfidenceThreshold: cfg.GeocodeConfidence,
		GenerationTimeout:   cfg.GenerationTimeout,
	})

	apiHandler := gateway.NewHandler(engine, sessions, usage, mailbox)
	chatHandler := gateway.NewChatHandler(engine, registry, mailbox, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	r.Handle("/metrics", promhttp.Handler())

	// Browser chat: cookie identity plus WebSocket upgrade.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		r.Get("/ws/chat", chatHandler.ServeHTTP)
	})

	// JSON API. The webhook requires the bot token unless auth is disabled
	// for local development.
	r.Group(func(r chi.Router) {
		if cfg.BotToken != "" {
			r.Use(middleware.BearerAuth(cfg.BotToken))
		} else {
			slog.Warn("BOT_TOKEN not set, webhook authentication disabled")
		}
		apiHandler.RegisterRoutes(r)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartSweeper(ctx, sessions, cfg.SweepInterval, engine.NotifyExpired)
	slog.Info("Session sweeper started", "timeout", cfg.SessionTimeout, "interval", cfg.SweepInterval)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
