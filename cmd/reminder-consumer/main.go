package main

import (
	"context"
	"errors"
	"os"
	"time"

	"subtrack/internal/amqp"
	"subtrack/internal/cli"
	"subtrack/internal/log"
	"subtrack/internal/notify"
)

// reminder-consumer drains the reminder queue and hands each fired reminder
// to the log sink. It is the reference consumer for the AMQP deliverer.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentAMQP)
	logger.Info("Starting reminder-consumer")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	sink := notify.LogDeliverer{Logger: logger}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
	})

	go func() {
		err := client.ConsumeReminders(ctx, func(ctx context.Context, msg *amqp.ReminderMessage) error {
			return sink.Deliver(ctx, msg.Notification())
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
