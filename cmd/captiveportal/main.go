// captiveportal is a lightweight HTTP responder for an offline local
// content server. It answers every captive-portal detection probe a
// client's OS or browser sends, deciding per-client whether to report
// success immediately or send the user to a landing page first.
//
// It proxies nothing and requires no database: every deployment is a
// single binary with in-memory client state.
//
// Usage:
//
//	export BIND_ADDRESS=:2080
//	export LOCAL_URL=http://go
//	./captiveportal
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/connectbox/captiveportal/internal/adminlog"
	"github.com/connectbox/captiveportal/internal/config"
	"github.com/connectbox/captiveportal/internal/metrics"
	"github.com/connectbox/captiveportal/internal/policy"
	"github.com/connectbox/captiveportal/internal/registry"
	"github.com/connectbox/captiveportal/internal/render"
	"github.com/connectbox/captiveportal/internal/server"
)

func main() {
	// Structured JSON logging by default — easy to parse with any log aggregator.
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("starting captive portal responder", "version", "1.0.0")

	// ─── Configuration ───────────────────────────────────────────────────────
	cfg := config.Load()
	slog.Info("config loaded",
		"bind_address", cfg.BindAddress,
		"local_url", cfg.LocalURL,
		"client_id_source", cfg.ClientIDSource.Kind,
		"metrics_enabled", cfg.MetricsEnabled,
	)

	// ─── Client Registry ─────────────────────────────────────────────────────
	reg := registry.New()

	// ─── Metrics (optional) ──────────────────────────────────────────────────
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// ─── Admin log fan-out (only matters if /web is mounted, but cheap to
	// run unconditionally so enabling WEB_ADMIN later needs no restart
	// semantics change) ───────────────────────────────────────────────────────
	al := adminlog.New()

	// ─── Policy Engine ───────────────────────────────────────────────────────
	engine := policy.New(policy.Config{
		Registry:              reg,
		LocalURL:              cfg.LocalURL,
		MaxAssumedSessionTime: cfg.MaxAssumedSessionTime,
		MaxTimeWithoutShowing: cfg.MaxTimeWithoutShowing,
	})

	// ─── Landing Renderer ────────────────────────────────────────────────────
	renderer := render.New()

	// ─── Graceful shutdown ───────────────────────────────────────────────────
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ─── Registry sweeper ────────────────────────────────────────────────────
	stop := make(chan struct{})
	go reg.RunSweeper(cfg.RegistrySweepInterval, cfg.MaxTimeWithoutShowing, stop)
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	// ─── HTTP server ─────────────────────────────────────────────────────────
	srv := server.New(cfg, reg, engine, renderer, m, al)
	srv.Start(ctx) // blocks until ctx is cancelled

	slog.Info("captive portal responder stopped")
}
