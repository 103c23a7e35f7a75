package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitegauge/sitegauge/acquire"
	"github.com/sitegauge/sitegauge/api"
	"github.com/sitegauge/sitegauge/breaker"
	"github.com/sitegauge/sitegauge/cache"
	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/content"
	"github.com/sitegauge/sitegauge/criteria"
	"github.com/sitegauge/sitegauge/engine"
	"github.com/sitegauge/sitegauge/llm"
	"github.com/sitegauge/sitegauge/pagespeed"
	"github.com/sitegauge/sitegauge/scheduler"
	"github.com/sitegauge/sitegauge/score"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("sitegauge starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"aiConfigured", cfg.AI.Configured(),
	)

	// ── 3. Initialise acquirer (launches browser) ───────────────────
	acq, err := acquire.New(cfg.Browser, cfg.Acquire)
	if err != nil {
		slog.Error("failed to initialise acquirer", "error", err)
		os.Exit(1)
	}
	defer acq.Close()

	// ── 4. Build the scoring pipeline ───────────────────────────────
	httpClient := &http.Client{Timeout: 60 * time.Second}
	judge := llm.NewJudge(httpClient, cfg.AI)
	psi := pagespeed.NewClient(httpClient, cfg.PageSpeed)
	prep := content.NewPreparer()
	tiers := criteria.NewTiers(judge, psi, prep, cfg)

	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		FailureWindow:     cfg.Breaker.FailureWindow,
		Cooldown:          cfg.Breaker.Cooldown,
		HalfOpenSuccesses: cfg.Breaker.HalfOpenSuccesses,
	})
	agg := score.NewAggregator(cfg.Scoring)
	sched := scheduler.New(breakers, agg, cfg)
	orch := engine.New(acq, sched, tiers, cfg)

	// ── 4b. Initialise cache ────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(orch, acq, breakers, cc, cfg, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight runs 15 seconds to complete; a score run is far
	// longer than a typical request, but tier deadlines bound the tail.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// acq.Close() runs via defer — drains page pool and kills Chrome.
	slog.Info("sitegauge stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
