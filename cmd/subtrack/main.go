package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"subtrack/internal/backend"
	"subtrack/internal/cli"
	apphttp "subtrack/internal/http"
	"subtrack/internal/log"
	"subtrack/internal/metrics"
	"subtrack/internal/notify"
	"subtrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger)
	res, err := factory.CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	collector := metrics.New("subtrack")
	stack := cli.NewStack(cfg, res, collector)

	var ready func(context.Context) error
	if p, ok := res.Store.(interface{ Ping(context.Context) error }); ok {
		ready = p.Ping
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Service:  stack.Service,
		Notifier: stack.Notifier,
		Metrics:  collector,
		Logger:   log.New(log.Config{Handler: logger.Handler(), Component: log.ComponentHTTP}),
		Ready:    ready,
	},
		apphttp.WithLocation(cfg.Location()),
		apphttp.WithCurrency(cfg.CurrencySymbol),
		apphttp.WithSummaryTTL(cfg.SummaryCacheTTL),
	)
	if err != nil {
		logger.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	startup, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	granted, err := stack.Notifier.RequestPermission(startup)
	if err != nil {
		logger.Warn("Failed to request notification permission", "error", err)
	}
	result := stack.Service.Resync(startup)
	cancelStartup()
	logger.Info("Startup resync complete",
		"permission_granted", granted,
		"total", result.Total,
		"scheduled", result.Scheduled,
		"past_due", result.PastDue,
		"degraded", result.Degraded)

	// Memory-backed reminders are invisible to other processes, so they are
	// fired from here.
	var (
		embedded       *worker.ReminderWorker
		closeDeliverer backend.CleanupFunc
	)
	if !backendCfg.Type.SharesNotifications() {
		var deliverer notify.Deliverer
		deliverer, closeDeliverer = factory.CreateDeliverer(backendCfg)
		embedded = worker.NewReminderWorker(
			notify.NewDispatcher(res.Notifications, deliverer, collector),
			stack.Service,
			worker.WithDispatchSchedule(cfg.DispatchSchedule),
			worker.WithResyncSchedule(cfg.ResyncSchedule),
			worker.WithLocation(cfg.Location()))
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if embedded != nil {
			embedded.Stop(ctx)
		}
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

	if embedded != nil {
		if err := embedded.Start(ctx); err != nil {
			logger.Error("Failed to start reminder worker", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		logger.Info("Starting subtrack server",
			"port", cfg.Port,
			"backend", backendCfg.Type,
			"timezone", cfg.Location().String(),
			"embedded_worker", embedded != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
