package main

import (
	"context"
	"os"
	"time"

	"subtrack/internal/backend"
	"subtrack/internal/cli"
	"subtrack/internal/log"
	"subtrack/internal/notify"
	"subtrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting reminder-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	if !backendCfg.Type.SharesNotifications() {
		logger.Error("The memory backend keeps reminders inside the server process; the server fires them itself",
			"backend", backendCfg.Type)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger)
	res, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	deliverer, closeDeliverer := factory.CreateDeliverer(backendCfg)

	stack := cli.NewStack(cfg, res, nil)

	w := worker.NewReminderWorker(
		notify.NewDispatcher(res.Notifications, deliverer, nil),
		stack.Service,
		worker.WithDispatchSchedule(cfg.DispatchSchedule),
		worker.WithResyncSchedule(cfg.ResyncSchedule),
		worker.WithLocation(cfg.Location()))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		w.Stop(ctx)
		if closeDeliverer != nil {
			if err := closeDeliverer(); err != nil {
				logger.Warn("Failed to close deliverer", "error", err)
			}
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Warn("Failed to close backend", "error", err)
			}
		}
	})

	// Catch up on anything that came due while the worker was down.
	logger.Info("Running initial resync and dispatch...")
	w.RunResync(ctx)
	if _, err := w.RunDispatch(ctx); err != nil {
		logger.Error("Initial dispatch failed", "error", err)
	}

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start reminder worker", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
