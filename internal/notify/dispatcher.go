package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/log"
)

// DeliveryRecorder receives one call per fired notification.
type DeliveryRecorder interface {
	RecordDelivery(result string)
}

// DispatchReport summarizes one Dispatch pass.
type DispatchReport struct {
	Due       int
	Delivered int
	Failed    int
	// Skipped counts due notifications cancelled before they were claimed.
	Skipped int
}

// Dispatcher fires notifications whose trigger has passed. Each one is
// claimed by removing it from the store before delivery, so a reminder
// cancelled after the due list was read never fires. A failed delivery is
// put back and retried on the next pass.
type Dispatcher struct {
	store     Store
	deliverer Deliverer
	recorder  DeliveryRecorder
}

func NewDispatcher(store Store, deliverer Deliverer, recorder DeliveryRecorder) *Dispatcher {
	return &Dispatcher{store: store, deliverer: deliverer, recorder: recorder}
}

// Dispatch delivers every notification due at now.
func (d *Dispatcher) Dispatch(ctx context.Context, now time.Time) (DispatchReport, error) {
	due, err := d.store.DueNotifications(ctx, now)
	if err != nil {
		return DispatchReport{}, fmt.Errorf("list due notifications: %w", err)
	}

	report := DispatchReport{Due: len(due)}
	var errs []error
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		claimed, err := d.store.DeleteNotification(ctx, n.Identifier)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim %s: %w", n.Identifier, err))
			continue
		}
		if !claimed {
			report.Skipped++
			slog.DebugContext(ctx, "Reminder cancelled before delivery",
				log.FieldComponent, log.ComponentNotify,
				log.FieldNotificationID, n.Identifier,
				log.FieldSubscriptionID, n.SubscriptionID())
			continue
		}

		if err := d.deliverer.Deliver(ctx, n); err != nil {
			report.Failed++
			d.record("failed")
			errs = append(errs, fmt.Errorf("deliver %s: %w", n.Identifier, err))
			slog.WarnContext(ctx, "Reminder delivery failed",
				log.FieldComponent, log.ComponentNotify,
				log.FieldNotificationID, n.Identifier,
				log.FieldSubscriptionID, n.SubscriptionID(),
				log.FieldError, err)
			if err := d.store.InsertNotification(ctx, n); err != nil {
				errs = append(errs, fmt.Errorf("requeue %s: %w", n.Identifier, err))
			}
			continue
		}
		report.Delivered++
		d.record("delivered")
	}

	if report.Due > 0 {
		slog.InfoContext(ctx, "Reminder dispatch complete",
			log.FieldComponent, log.ComponentNotify,
			"due", report.Due,
			"delivered", report.Delivered,
			"failed", report.Failed,
			"skipped", report.Skipped)
	}
	return report, errors.Join(errs...)
}

func (d *Dispatcher) record(result string) {
	if d.recorder != nil {
		d.recorder.RecordDelivery(result)
	}
}

// LogDeliverer writes fired notifications to the structured log.
type LogDeliverer struct {
	Logger *slog.Logger
}

func (l LogDeliverer) Deliver(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, n.Content.Title,
		log.FieldComponent, log.ComponentNotify,
		log.FieldNotificationID, n.Identifier,
		log.FieldSubscriptionID, n.SubscriptionID(),
		log.FieldTrigger, n.Trigger.Format(time.RFC3339),
		"body", n.Content.Body,
		"channel", n.Content.ChannelID)
	return nil
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
