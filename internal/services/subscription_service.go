package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/scheduler"
	"subtrack/internal/store"
)

// RenewalScheduler is the part of scheduler.RenewalScheduler the service drives.
type RenewalScheduler interface {
	ScheduleRenewalNotification(ctx context.Context, sub core.Subscription) error
	CancelNotification(ctx context.Context, subscriptionID string) (int, error)
	ScheduleAllNotifications(ctx context.Context, subs []core.Subscription) scheduler.ResyncReport
	PruneOrphans(ctx context.Context, subs []core.Subscription, exists scheduler.ExistsFunc) (int, error)
}

// resyncTimeout bounds a shared resync run, which outlives any one caller.
const resyncTimeout = 2 * time.Minute

// SubscriptionInput is raw user input for creating or replacing a subscription.
type SubscriptionInput struct {
	Name        string
	Price       string
	Cycle       string
	RenewalDate string
	Notes       string
}

// ResyncResult is a scheduler report plus what the service did around it.
type ResyncResult struct {
	scheduler.ResyncReport
	Pruned   int  `json:"pruned"`
	Degraded bool `json:"degraded"`
}

// SubscriptionService owns the create/edit/delete flows and keeps the
// reminder schedule in step with the store. Mutations and resync runs are
// serialized so a store write and its reminder change are never
// interleaved with another writer in the same process.
type SubscriptionService struct {
	mu        sync.Mutex
	store     store.SubscriptionStore
	scheduler RenewalScheduler
	loc       *time.Location
	now       func() time.Time
	newID     func() string
	resync    singleflight.Group
}

type ServiceOption func(*SubscriptionService)

// WithLocation sets the zone date-only renewal input is read in.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *SubscriptionService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *SubscriptionService) { s.now = now }
}

func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *SubscriptionService) { s.newID = gen }
}

func NewSubscriptionService(st store.SubscriptionStore, sched RenewalScheduler, opts ...ServiceOption) *SubscriptionService {
	s := &SubscriptionService{
		store:     st,
		scheduler: sched,
		loc:       time.Local,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseInput validates raw input into a subscription without an ID.
func (s *SubscriptionService) ParseInput(in SubscriptionInput) (core.Subscription, error) {
	cents, err := core.ParseDecimalToCents(in.Price)
	if err != nil {
		return core.Subscription{}, &core.ValidationError{Field: "price", Err: err}
	}
	cycle, err := core.ParseCycle(in.Cycle)
	if err != nil {
		return core.Subscription{}, &core.ValidationError{Field: "cycle", Err: err}
	}
	renewal, err := ParseRenewalDate(in.RenewalDate, s.loc)
	if err != nil {
		return core.Subscription{}, &core.ValidationError{Field: "renewal_date", Err: err}
	}

	sub := core.Subscription{
		Name:        strings.TrimSpace(in.Name),
		Price:       core.Money{Cents: cents},
		Cycle:       cycle,
		RenewalDate: renewal,
		Notes:       strings.TrimSpace(in.Notes),
	}
	if err := sub.Validate(); err != nil {
		return core.Subscription{}, err
	}
	return sub, nil
}

// ParseRenewalDate accepts an RFC 3339 instant or a YYYY-MM-DD date, the
// latter read as midnight in loc.
func ParseRenewalDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, core.ErrInvalidRenewalDate
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidRenewalDate, v)
}

// Create stores a new subscription and schedules its reminder. Validation
// failures abort before anything is written. Scheduling never fails the
// call; its outcome is returned instead.
func (s *SubscriptionService) Create(ctx context.Context, in SubscriptionInput) (core.Subscription, scheduler.Outcome, error) {
	sub, err := s.ParseInput(in)
	if err != nil {
		return core.Subscription{}, "", err
	}
	sub.ID = s.newID()
	sub.CreatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Upsert(ctx, sub); err != nil {
		return core.Subscription{}, "", err
	}

	slog.InfoContext(ctx, "Subscription created",
		log.NewFields().
			WithSubscription(sub.ID, sub.Name, sub.Price.Cents, string(sub.Cycle)).
			WithOperation(log.OpCreate).
			WithComponent(log.ComponentSubscription).
			ToSlice()...)

	return sub, s.schedule(ctx, sub), nil
}

// Replace swaps every user field of an existing subscription and
// reschedules its reminder. ID and CreatedAt are kept.
func (s *SubscriptionService) Replace(ctx context.Context, id string, in SubscriptionInput) (core.Subscription, scheduler.Outcome, error) {
	next, err := s.ParseInput(in)
	if err != nil {
		return core.Subscription{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(ctx, id)
	if err != nil {
		return core.Subscription{}, "", err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt

	if err := s.store.Upsert(ctx, next); err != nil {
		return core.Subscription{}, "", err
	}

	slog.InfoContext(ctx, "Subscription replaced",
		log.FieldComponent, log.ComponentSubscription,
		log.FieldOperation, log.OpUpdate,
		log.FieldSubscriptionID, next.ID)

	return next, s.schedule(ctx, next), nil
}

// Get returns one subscription or core.ErrNotFound.
func (s *SubscriptionService) Get(ctx context.Context, id string) (core.Subscription, error) {
	subs, err := s.store.Load(ctx)
	if err != nil {
		return core.Subscription{}, err
	}
	for _, sub := range subs {
		if sub.ID == id {
			return sub, nil
		}
	}
	return core.Subscription{}, fmt.Errorf("subscription %s: %w", id, core.ErrNotFound)
}

// Delete removes the subscription and then every reminder tagged with its
// ID. Reminders are cancelled even when the record was already gone, so a
// stale notification cannot outlive its subscription.
func (s *SubscriptionService) Delete(ctx context.Context, id string) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, delErr := s.store.DeleteByID(ctx, id)
	if delErr != nil && !errors.Is(delErr, core.ErrNotFound) {
		return nil, delErr
	}

	cancelled, err := s.scheduler.CancelNotification(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to cancel reminders for deleted subscription",
			log.FieldComponent, log.ComponentSubscription,
			log.FieldSubscriptionID, id,
			log.FieldError, err)
	}
	if delErr != nil {
		return nil, delErr
	}

	slog.InfoContext(ctx, "Subscription deleted",
		log.FieldComponent, log.ComponentSubscription,
		log.FieldOperation, log.OpDelete,
		log.FieldSubscriptionID, id,
		"reminders_cancelled", cancelled)

	core.SortByRenewal(remaining)
	return remaining, nil
}

// List returns every subscription ordered by renewal date.
func (s *SubscriptionService) List(ctx context.Context) ([]core.Subscription, error) {
	subs, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	core.SortByRenewal(subs)
	return subs, nil
}

// Resync reloads the collection and reschedules every reminder. It runs
// unattended, so it never fails: a store that cannot be read is treated as
// empty and the result is flagged as degraded. Concurrent calls share one
// run, which is detached from the first caller's cancellation.
func (s *SubscriptionService) Resync(ctx context.Context) ResyncResult {
	v, _, _ := s.resync.Do("resync", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resyncTimeout)
		defer cancel()
		return s.resyncOnce(runCtx), nil
	})
	return v.(ResyncResult)
}

func (s *SubscriptionService) resyncOnce(ctx context.Context) ResyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.store.Load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Subscription store unavailable, resyncing an empty list",
			log.FieldComponent, log.ComponentSubscription,
			log.FieldOperation, log.OpResync,
			log.FieldError, err)
		return ResyncResult{
			ResyncReport: s.scheduler.ScheduleAllNotifications(ctx, nil),
			Degraded:     true,
		}
	}

	result := ResyncResult{ResyncReport: s.scheduler.ScheduleAllNotifications(ctx, subs)}
	pruned, err := s.scheduler.PruneOrphans(ctx, subs, s.stored)
	if err != nil {
		slog.WarnContext(ctx, "Failed to prune orphaned reminders",
			log.FieldComponent, log.ComponentSubscription,
			log.FieldError, err)
	}
	result.Pruned = pruned
	return result
}

// stored reports whether id is in the store right now. Another process
// sharing the store may have written it after the resync list was loaded.
func (s *SubscriptionService) stored(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Summary computes the monthly total and the renewals due within the
// upcoming window, relative to now.
func (s *SubscriptionService) Summary(ctx context.Context, now time.Time) (core.Summary, error) {
	subs, err := s.List(ctx)
	if err != nil {
		return core.Summary{}, err
	}

	summary := core.Summary{
		Count:        len(subs),
		MonthlyTotal: MonthlyTotal(subs),
		Upcoming:     []core.UpcomingRenewal{},
	}
	for _, sub := range subs {
		days := core.DaysUntil(sub.RenewalDate, now.In(s.loc))
		if days >= 0 && days <= core.UpcomingWindowDays {
			summary.Upcoming = append(summary.Upcoming, core.UpcomingRenewal{Subscription: sub, DaysLeft: days})
		}
	}
	return summary, nil
}

func (s *SubscriptionService) schedule(ctx context.Context, sub core.Subscription) scheduler.Outcome {
	err := s.scheduler.ScheduleRenewalNotification(ctx, sub)
	outcome := scheduler.OutcomeOf(err)
	switch outcome {
	case scheduler.OutcomeScheduled, scheduler.OutcomePastDue:
		slog.DebugContext(ctx, "Reminder schedule updated",
			log.FieldComponent, log.ComponentSubscription,
			log.FieldSubscriptionID, sub.ID,
			log.FieldOutcome, string(outcome))
	default:
		slog.WarnContext(ctx, "Reminder not scheduled",
			log.FieldComponent, log.ComponentSubscription,
			log.FieldSubscriptionID, sub.ID,
			log.FieldOutcome, string(outcome),
			log.FieldError, err)
	}
	return outcome
}
