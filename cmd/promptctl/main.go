// promptctl is the release-engineering control plane server: it serves the
// HTTP+JSON API of spec.md §6 and runs the background approval-expiration
// and deployment-monitor sweeps of spec.md §4.G.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentlightning/promptctl/pkg/api"
	"github.com/agentlightning/promptctl/pkg/approval"
	"github.com/agentlightning/promptctl/pkg/config"
	"github.com/agentlightning/promptctl/pkg/deployment"
	"github.com/agentlightning/promptctl/pkg/metrics"
	"github.com/agentlightning/promptctl/pkg/notify"
	"github.com/agentlightning/promptctl/pkg/regression"
	"github.com/agentlightning/promptctl/pkg/scheduler"
	"github.com/agentlightning/promptctl/pkg/store"
	"github.com/agentlightning/promptctl/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, continuing with process environment", "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting promptctl", "version", version.Full(), "port", cfg.Port)

	st, db, err := store.Connect(store.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()
	slog.Info("connected to database, migrations applied")

	gw := notify.New()
	if cfg.NotificationsEnabled {
		if sink := notify.NewSlackSink(cfg.SlackWebhookURL); sink != nil {
			for _, kind := range []notify.Kind{
				notify.ApprovalNeeded, notify.ApprovalReceived, notify.ApprovalRejected,
				notify.Deployed, notify.RegressionDetected, notify.Rollback, notify.RollbackComplete,
			} {
				gw.Register(kind, sink.Send)
			}
			slog.Info("slack notifications enabled")
		}
	}

	ap := approval.New(st, gw)
	ms := metrics.New(st, metrics.Config{
		MinSampleSize:         cfg.MinSampleSize,
		BaselineWindowMinutes: cfg.BaselineWindowMinutes,
	})
	regCfg := regression.Config{
		SuccessRateThreshold:    cfg.SuccessRateThreshold,
		EfficiencyThreshold:     cfg.EfficiencyThreshold,
		MinSampleSize:           cfg.MinSampleSize,
		EvaluationWindowMinutes: cfg.EvaluationWindowMinutes,
	}
	rd := regression.New(st, ms, gw, regCfg)
	dep := deployment.New(st, ap, ms, rd, gw)

	sch := scheduler.New(st, rd, dep, regCfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sch.Start(ctx)
	defer sch.Stop()

	server := api.NewServer(st, ap, dep, ms, rd)

	go func() {
		addr := ":" + cfg.Port
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during HTTP shutdown", "error", err)
	}
}
