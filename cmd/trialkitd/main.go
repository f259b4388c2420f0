package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/veskar/trialkit/dbopen"
	"github.com/veskar/trialkit/observability"
	"github.com/veskar/trialkit/service"
	"github.com/veskar/trialkit/webfetch"
)

func main() {
	cfgPath := "trialkitd.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := service.LoadConfig(cfgPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB — separate from the run store to avoid write contention.
	obsPath := cfg.ObsDBPath
	if obsPath == "" {
		obsPath = filepath.Join(filepath.Dir(cfg.DBPath), "observability.db")
	}
	obsDB, err := dbopen.Open(obsPath, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()

	audit := observability.NewAuditLogger(obsDB, 1000)
	events := observability.NewEventLogger(obsDB)
	metrics := observability.NewMetrics(obsDB, 100, 5*time.Second)

	// Heartbeat: liveness + runtime snapshot every 15s; /v1/health reads it.
	heartbeat := observability.NewHeartbeat(obsDB, "trialkitd", 15*time.Second)
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithAudit(audit),
		service.WithEvents(events),
		service.WithMetrics(metrics),
		service.WithObsDB(obsDB),
	}

	fetchCfg := webfetch.Config{Logger: logger}
	var renderer *webfetch.BrowserRenderer
	if cfg.Browser.Enabled {
		renderer = webfetch.NewBrowserRenderer(webfetch.BrowserConfig{
			RemoteURL: cfg.Browser.RemoteURL,
			Logger:    logger,
		})
		defer renderer.Close()
		fetchCfg.Renderer = renderer
	}
	opts = append(opts, service.WithFetcher(webfetch.New(fetchCfg)))

	svc, err := service.New(cfg, opts...)
	if err != nil {
		slog.Error("service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// MCP over streamable HTTP, mounted beside the REST routes.
	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "trialkit",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(mcpSrv)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpSrv
	}, nil)

	router := svc.Router()
	router.Mount("/mcp", mcpHandler)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("trialkitd listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("serve", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("stopped")
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
