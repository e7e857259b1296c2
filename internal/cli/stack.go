package cli

import (
	"subtrack/internal/backend"
	"subtrack/internal/config"
	"subtrack/internal/metrics"
	"subtrack/internal/notify"
	"subtrack/internal/scheduler"
	"subtrack/internal/services"
)

// Stack is the reminder pipeline every binary that touches subscriptions
// builds over its backend.
type Stack struct {
	Notifier *notify.Local
	Service  *services.SubscriptionService
}

// NewStack wires the notifier, the renewal scheduler and the subscription
// service from configuration. collector may be nil.
func NewStack(cfg *config.Config, res *backend.BackendResult, collector *metrics.Collector) Stack {
	loc := cfg.Location()
	notifier := notify.NewLocal(res.Notifications, notify.WithGrantPolicy(cfg.NotificationsEnabled))
	sched := scheduler.New(notifier,
		scheduler.WithLeadDays(cfg.ReminderLeadDays),
		scheduler.WithHour(cfg.ReminderHour),
		scheduler.WithLocation(loc),
		scheduler.WithCurrency(cfg.CurrencySymbol),
		scheduler.WithRecorder(collector))
	return Stack{
		Notifier: notifier,
		Service:  services.NewSubscriptionService(res.Store, sched, services.WithLocation(loc)),
	}
}
