// Package scheduler keeps at most one pending renewal reminder per
// subscription.
//
// Every reschedule is an explicit cancel followed by an optional add; the
// notification subsystem is never asked to mutate a trigger in place. The
// reminders for a subscription are found by scanning the live scheduled set
// for the subscriptionId payload tag, so the scheduler holds no state of its
// own besides per-id locks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/notify"
)

const (
	DefaultLeadDays = 2
	DefaultHour     = 9
	DefaultCurrency = "₹"

	ReminderTitle   = "Renewal Reminder"
	ReminderChannel = "sub-reminders"
)

// Outcome classifies the result of a single scheduling attempt.
type Outcome string

const (
	OutcomeScheduled        Outcome = "scheduled"
	OutcomePastDue          Outcome = "past_due"
	OutcomePermissionDenied Outcome = "permission_denied"
	OutcomeFailed           Outcome = "failed"
)

// OutcomeOf maps a ScheduleRenewalNotification error onto its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeScheduled
	case errors.Is(err, core.ErrPastDue):
		return OutcomePastDue
	case errors.Is(err, core.ErrPermissionDenied):
		return OutcomePermissionDenied
	default:
		return OutcomeFailed
	}
}

// Recorder receives scheduler events. *metrics.Collector satisfies it.
type Recorder interface {
	RecordSchedule(outcome string)
	RecordCancelled(n int)
	RecordResync(live int)
}

// ResyncReport counts the outcomes of one bulk pass.
type ResyncReport struct {
	Total            int `json:"total"`
	Scheduled        int `json:"scheduled"`
	PastDue          int `json:"past_due"`
	PermissionDenied int `json:"permission_denied"`
	Failed           int `json:"failed"`
}

// RenewalScheduler computes reminder instants and reconciles them with a
// notify.Notifier.
type RenewalScheduler struct {
	notifier notify.Notifier
	leadDays int
	hour     int
	loc      *time.Location
	currency string
	now      func() time.Time
	recorder Recorder
	locks    *keyedMutex
}

// Option configures a RenewalScheduler.
type Option func(*RenewalScheduler)

func WithLeadDays(days int) Option {
	return func(s *RenewalScheduler) { s.leadDays = days }
}

// WithHour sets the local hour of day reminders fire at.
func WithHour(hour int) Option {
	return func(s *RenewalScheduler) { s.hour = hour }
}

// WithLocation sets the zone used for the day arithmetic and the hour.
func WithLocation(loc *time.Location) Option {
	return func(s *RenewalScheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithCurrency(symbol string) Option {
	return func(s *RenewalScheduler) { s.currency = symbol }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *RenewalScheduler) { s.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(s *RenewalScheduler) { s.recorder = r }
}

func New(notifier notify.Notifier, opts ...Option) *RenewalScheduler {
	s := &RenewalScheduler{
		notifier: notifier,
		leadDays: DefaultLeadDays,
		hour:     DefaultHour,
		loc:      time.Local,
		currency: DefaultCurrency,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotifyInstant returns the renewal date moved back by the lead time, at the
// configured hour in the reminder zone.
func (s *RenewalScheduler) NotifyInstant(sub core.Subscription) time.Time {
	d := sub.RenewalDate.In(s.loc).AddDate(0, 0, -s.leadDays)
	return time.Date(d.Year(), d.Month(), d.Day(), s.hour, 0, 0, 0, s.loc)
}

// Content builds the reminder payload for sub.
func (s *RenewalScheduler) Content(sub core.Subscription) notify.Content {
	unit := "days"
	if s.leadDays == 1 {
		unit = "day"
	}
	return notify.Content{
		Title:     ReminderTitle,
		Body:      fmt.Sprintf("%s renews in %d %s - %s", sub.Name, s.leadDays, unit, sub.Price.Format(s.currency)),
		Data:      map[string]string{notify.DataSubscriptionID: sub.ID},
		ChannelID: ReminderChannel,
	}
}

// ScheduleRenewalNotification cancels every reminder tagged with sub.ID and,
// when the notify instant is still ahead, registers a fresh one.
//
// A nil error means exactly one reminder is live. core.ErrPastDue and
// core.ErrPermissionDenied leave zero reminders for sub.ID.
func (s *RenewalScheduler) ScheduleRenewalNotification(ctx context.Context, sub core.Subscription) error {
	err := s.schedule(ctx, sub)
	s.recordSchedule(OutcomeOf(err))
	return err
}

func (s *RenewalScheduler) schedule(ctx context.Context, sub core.Subscription) error {
	if err := sub.ValidateStored(); err != nil {
		return err
	}

	unlock := s.locks.Lock(sub.ID)
	defer unlock()

	if _, err := s.cancel(ctx, sub.ID); err != nil {
		return err
	}

	trigger := s.NotifyInstant(sub)
	if !trigger.After(s.now()) {
		return fmt.Errorf("reminder for %s at %s: %w", sub.ID, trigger.Format(time.RFC3339), core.ErrPastDue)
	}

	id, err := s.notifier.Schedule(ctx, s.Content(sub), trigger)
	if err != nil {
		return fmt.Errorf("schedule reminder for %s: %w", sub.ID, err)
	}

	slog.DebugContext(ctx, "Renewal reminder scheduled",
		log.FieldComponent, log.ComponentScheduler,
		log.FieldSubscriptionID, sub.ID,
		log.FieldNotificationID, id,
		log.FieldTrigger, trigger.Format(time.RFC3339))
	return nil
}

// CancelNotification removes every live reminder tagged with subscriptionID
// and returns how many were removed.
//
// The lookup is a linear scan of all scheduled notifications filtered by
// payload tag. Foreign notifications without the tag are never touched.
func (s *RenewalScheduler) CancelNotification(ctx context.Context, subscriptionID string) (int, error) {
	if subscriptionID == "" {
		return 0, &core.ValidationError{Field: "id", Err: core.ErrEmptyID}
	}
	unlock := s.locks.Lock(subscriptionID)
	defer unlock()
	return s.cancel(ctx, subscriptionID)
}

// cancel expects the caller to hold the lock for subscriptionID.
func (s *RenewalScheduler) cancel(ctx context.Context, subscriptionID string) (int, error) {
	scheduled, err := s.notifier.ListScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scheduled reminders: %w", err)
	}

	var (
		cancelled int
		errs      []error
	)
	for _, n := range scheduled {
		if n.SubscriptionID() != subscriptionID {
			continue
		}
		if err := s.notifier.Cancel(ctx, n.Identifier); err != nil {
			errs = append(errs, err)
			continue
		}
		cancelled++
	}

	if s.recorder != nil {
		s.recorder.RecordCancelled(cancelled)
	}
	if len(errs) > 0 {
		return cancelled, fmt.Errorf("cancel reminders for %s: %w", subscriptionID, errors.Join(errs...))
	}
	return cancelled, nil
}

// ScheduleAllNotifications reschedules every subscription in list order.
// It never fails: each outcome is counted and logged, and the next item is
// attempted regardless. Calling it repeatedly converges on the same set of
// live reminders.
func (s *RenewalScheduler) ScheduleAllNotifications(ctx context.Context, subs []core.Subscription) ResyncReport {
	report := ResyncReport{Total: len(subs)}
	for _, sub := range subs {
		err := s.ScheduleRenewalNotification(ctx, sub)
		switch OutcomeOf(err) {
		case OutcomeScheduled:
			report.Scheduled++
		case OutcomePastDue:
			report.PastDue++
		case OutcomePermissionDenied:
			report.PermissionDenied++
		default:
			report.Failed++
			slog.ErrorContext(ctx, "Failed to schedule renewal reminder",
				log.FieldComponent, log.ComponentScheduler,
				log.FieldOperation, log.OpResync,
				log.FieldSubscriptionID, sub.ID,
				log.FieldError, err)
		}
	}

	if report.PermissionDenied > 0 {
		slog.WarnContext(ctx, "Notification permission not granted, reminders skipped",
			log.FieldComponent, log.ComponentScheduler,
			log.FieldCount, report.PermissionDenied)
	}
	slog.InfoContext(ctx, "Renewal reminders resynced",
		log.FieldComponent, log.ComponentScheduler,
		"total", report.Total,
		"scheduled", report.Scheduled,
		"past_due", report.PastDue,
		"failed", report.Failed)

	if s.recorder != nil {
		s.recorder.RecordResync(report.Scheduled)
	}
	return report
}

// ExistsFunc reports whether a subscription is currently stored.
type ExistsFunc func(ctx context.Context, subscriptionID string) (bool, error)

// PruneOrphans cancels reminders tagged with a subscription ID that is not
// in subs. Notifications without the tag are left alone. Callers must only
// pass a list that was actually loaded, never a degraded empty one.
//
// When exists is non-nil each candidate is looked up again under its lock
// and kept if it is stored or the lookup fails.
func (s *RenewalScheduler) PruneOrphans(ctx context.Context, subs []core.Subscription, exists ExistsFunc) (int, error) {
	keep := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		keep[sub.ID] = struct{}{}
	}

	scheduled, err := s.notifier.ListScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scheduled reminders: %w", err)
	}
	orphans := make(map[string]struct{})
	for _, n := range scheduled {
		id := n.SubscriptionID()
		if id == "" {
			continue
		}
		if _, ok := keep[id]; !ok {
			orphans[id] = struct{}{}
		}
	}

	var (
		total int
		errs  []error
	)
	for id := range orphans {
		n, err := s.pruneOne(ctx, id, exists)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if total > 0 {
		slog.InfoContext(ctx, "Pruned orphaned renewal reminders",
			log.FieldComponent, log.ComponentScheduler,
			log.FieldCount, total)
	}
	return total, errors.Join(errs...)
}

func (s *RenewalScheduler) pruneOne(ctx context.Context, subscriptionID string, exists ExistsFunc) (int, error) {
	unlock := s.locks.Lock(subscriptionID)
	defer unlock()

	if exists != nil {
		ok, err := exists(ctx, subscriptionID)
		if err != nil {
			return 0, fmt.Errorf("look up %s before pruning: %w", subscriptionID, err)
		}
		if ok {
			slog.DebugContext(ctx, "Reminder owner stored after resync load, keeping it",
				log.FieldComponent, log.ComponentScheduler,
				log.FieldSubscriptionID, subscriptionID)
			return 0, nil
		}
	}
	return s.cancel(ctx, subscriptionID)
}

func (s *RenewalScheduler) recordSchedule(o Outcome) {
	if s.recorder != nil {
		s.recorder.RecordSchedule(string(o))
	}
}
