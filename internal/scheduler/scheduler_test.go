package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/core"
	"subtrack/internal/notify"
)

// 2025-03-10 14:00 UTC is "now" for every test unless stated otherwise.
var testNow = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newGranted(t *testing.T) (*notify.Local, *notify.MemoryStore) {
	t.Helper()
	store := notify.NewMemoryStore()
	n := notify.NewLocal(store)
	granted, err := n.RequestPermission(context.Background())
	require.NoError(t, err)
	require.True(t, granted)
	return n, store
}

func newScheduler(n notify.Notifier, opts ...Option) *RenewalScheduler {
	base := []Option{WithClock(fixedClock(testNow)), WithLocation(time.UTC)}
	return New(n, append(base, opts...)...)
}

func sub(id string, renewal time.Time) core.Subscription {
	return core.Subscription{
		ID:          id,
		Name:        "Netflix",
		Price:       core.Money{Cents: 1549},
		Cycle:       core.Monthly,
		RenewalDate: renewal,
	}
}

func daysFromToday(days int) time.Time {
	return core.StartOfDay(testNow).AddDate(0, 0, days)
}

func tagged(t *testing.T, n notify.Notifier, id string) []notify.Notification {
	t.Helper()
	all, err := n.ListScheduled(context.Background())
	require.NoError(t, err)
	var out []notify.Notification
	for _, x := range all {
		if x.SubscriptionID() == id {
			out = append(out, x)
		}
	}
	return out
}

func TestNotifyInstant(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	tests := []struct {
		name    string
		loc     *time.Location
		renewal time.Time
		want    time.Time
	}{
		{
			name:    "two days back at nine",
			loc:     time.UTC,
			renewal: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "late evening renewal keeps its calendar day",
			loc:     time.UTC,
			renewal: time.Date(2025, 3, 20, 23, 59, 0, 0, time.UTC),
			want:    time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "crosses month boundary",
			loc:     time.UTC,
			renewal: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			want:    time.Date(2025, 2, 27, 9, 0, 0, 0, time.UTC),
		},
		{
			name:    "day is taken in the reminder zone",
			loc:     ist,
			renewal: time.Date(2025, 3, 20, 20, 0, 0, 0, time.UTC), // 21 Mar 01:30 IST
			want:    time.Date(2025, 3, 19, 9, 0, 0, 0, ist),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, WithLocation(tt.loc))
			got := s.NotifyInstant(sub("a", tt.renewal))
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestContent(t *testing.T) {
	s := New(nil)
	c := s.Content(sub("a", testNow))

	assert.Equal(t, "Renewal Reminder", c.Title)
	assert.Equal(t, "Netflix renews in 2 days - ₹15.49", c.Body)
	assert.Equal(t, map[string]string{"subscriptionId": "a"}, c.Data)
	assert.Equal(t, "sub-reminders", c.ChannelID)

	s = New(nil, WithLeadDays(1), WithCurrency("$"))
	assert.Equal(t, "Netflix renews in 1 day - $15.49", s.Content(sub("a", testNow)).Body)
}

func TestSchedule_ExactTrigger(t *testing.T) {
	n, _ := newGranted(t)
	s := newScheduler(n)
	renewal := daysFromToday(10)

	require.NoError(t, s.ScheduleRenewalNotification(context.Background(), sub("a", renewal)))

	got := tagged(t, n, "a")
	require.Len(t, got, 1)
	want := time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(got[0].Trigger), "trigger %s", got[0].Trigger)
	assert.Equal(t, ReminderTitle, got[0].Content.Title)
}

func TestSchedule_Idempotent(t *testing.T) {
	n, _ := newGranted(t)
	s := newScheduler(n)
	x := sub("a", daysFromToday(10))

	require.NoError(t, s.ScheduleRenewalNotification(context.Background(), x))
	require.NoError(t, s.ScheduleRenewalNotification(context.Background(), x))

	assert.Len(t, tagged(t, n, "a"), 1)
}

func TestSchedule_PastDueLeavesNothing(t *testing.T) {
	ctx := context.Background()
	n, _ := newGranted(t)

	// Scheduled earlier, while it was still in the future.
	earlier := newScheduler(n, WithClock(fixedClock(testNow.AddDate(0, 0, -5))))
	require.NoError(t, earlier.ScheduleRenewalNotification(ctx, sub("a", daysFromToday(1))))
	require.Len(t, tagged(t, n, "a"), 1)

	s := newScheduler(n)
	err := s.ScheduleRenewalNotification(ctx, sub("a", daysFromToday(1)))
	assert.ErrorIs(t, err, core.ErrPastDue)
	assert.Empty(t, tagged(t, n, "a"))
}

func TestSchedule_TriggerEqualToNowIsPastDue(t *testing.T) {
	n, _ := newGranted(t)
	renewal := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

	atNine := newScheduler(n, WithClock(fixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))))
	err := atNine.ScheduleRenewalNotification(context.Background(), sub("a", renewal))
	assert.ErrorIs(t, err, core.ErrPastDue)
	assert.Empty(t, tagged(t, n, "a"))

	justBefore := newScheduler(n, WithClock(fixedClock(time.Date(2025, 3, 10, 8, 59, 59, 0, time.UTC))))
	require.NoError(t, justBefore.ScheduleRenewalNotification(context.Background(), sub("a", renewal)))
	assert.Len(t, tagged(t, n, "a"), 1)
}

func TestSchedule_RescheduleToNearDateScenario(t *testing.T) {
	ctx := context.Background()
	n, _ := newGranted(t)
	s := newScheduler(n)

	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("a", daysFromToday(10))))
	first := tagged(t, n, "a")
	require.Len(t, first, 1)
	assert.True(t, daysFromToday(8).Add(9*time.Hour).Equal(first[0].Trigger))

	err := s.ScheduleRenewalNotification(ctx, sub("a", daysFromToday(1)))
	assert.ErrorIs(t, err, core.ErrPastDue)
	assert.Empty(t, tagged(t, n, "a"))
}

func TestSchedule_PermissionDenied(t *testing.T) {
	ctx := context.Background()
	n, store := newGranted(t)
	s := newScheduler(n)
	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("a", daysFromToday(10))))

	require.NoError(t, store.SetPermissionGranted(ctx, false))
	err := s.ScheduleRenewalNotification(ctx, sub("a", daysFromToday(12)))

	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.False(t, errors.Is(err, core.ErrPastDue))
	assert.Empty(t, tagged(t, n, "a"))
}

func TestSchedule_RejectsInvalidSubscription(t *testing.T) {
	n, _ := newGranted(t)
	s := newScheduler(n)

	err := s.ScheduleRenewalNotification(context.Background(), sub("", daysFromToday(10)))
	assert.ErrorIs(t, err, core.ErrValidation)

	bad := sub("a", time.Time{})
	err = s.ScheduleRenewalNotification(context.Background(), bad)
	assert.ErrorIs(t, err, core.ErrInvalidRenewalDate)
	assert.Equal(t, OutcomeFailed, OutcomeOf(err))
}

func TestCancelNotification(t *testing.T) {
	ctx := context.Background()
	n, store := newGranted(t)
	s := newScheduler(n)

	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("a", daysFromToday(10))))
	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("b", daysFromToday(10))))
	// A duplicate left behind by some earlier bug, plus a foreign notification.
	require.NoError(t, store.InsertNotification(ctx, notify.Notification{
		Identifier: "dup",
		Content:    notify.Content{Data: map[string]string{notify.DataSubscriptionID: "a"}},
		Trigger:    daysFromToday(3),
	}))
	require.NoError(t, store.InsertNotification(ctx, notify.Notification{Identifier: "foreign", Trigger: daysFromToday(3)}))

	cancelled, err := s.CancelNotification(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)
	assert.Empty(t, tagged(t, n, "a"))
	assert.Len(t, tagged(t, n, "b"), 1)

	all, err := n.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cancelled, err = s.CancelNotification(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, cancelled)

	_, err = s.CancelNotification(ctx, "")
	assert.ErrorIs(t, err, core.ErrValidation)
}

// CancelNotification scans every scheduled notification on each call. This
// test pins the tag filter semantics on a larger set rather than timing.
func TestCancelNotification_ScansWholeSet(t *testing.T) {
	ctx := context.Background()
	n, _ := newGranted(t)
	s := newScheduler(n)

	for i := 0; i < 200; i++ {
		require.NoError(t, s.ScheduleRenewalNotification(ctx, sub(fmt.Sprintf("sub-%d", i), daysFromToday(5+i%20))))
	}
	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("target", daysFromToday(30))))

	cancelled, err := s.CancelNotification(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	all, err := n.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 200)
}

func TestScheduleAll(t *testing.T) {
	ctx := context.Background()
	n, _ := newGranted(t)
	s := newScheduler(n)

	subs := []core.Subscription{
		sub("future-1", daysFromToday(10)),
		sub("past", daysFromToday(-3)),
		sub("future-2", daysFromToday(40)),
		sub("near", daysFromToday(1)),
	}

	for round := 0; round < 3; round++ {
		report := s.ScheduleAllNotifications(ctx, subs)
		assert.Equal(t, ResyncReport{Total: 4, Scheduled: 2, PastDue: 2}, report)
	}

	assert.Len(t, tagged(t, n, "future-1"), 1)
	assert.Len(t, tagged(t, n, "future-2"), 1)
	assert.Empty(t, tagged(t, n, "past"))
	assert.Empty(t, tagged(t, n, "near"))

	reversed := []core.Subscription{subs[3], subs[2], subs[1], subs[0]}
	s.ScheduleAllNotifications(ctx, reversed)
	all, err := n.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type brokenNotifier struct {
	notify.Notifier
}

func (brokenNotifier) ListScheduled(context.Context) ([]notify.Notification, error) {
	return nil, errors.New("subsystem unavailable")
}

func TestScheduleAll_NeverFails(t *testing.T) {
	s := newScheduler(brokenNotifier{})

	report := s.ScheduleAllNotifications(context.Background(), []core.Subscription{
		sub("a", daysFromToday(10)),
		sub("b", daysFromToday(11)),
	})
	assert.Equal(t, ResyncReport{Total: 2, Failed: 2}, report)
}

type fakeRecorder struct {
	mu        sync.Mutex
	outcomes  map[string]int
	cancelled int
	resyncs   int
	live      int
}

func (f *fakeRecorder) RecordSchedule(o string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = map[string]int{}
	}
	f.outcomes[o]++
}

func (f *fakeRecorder) RecordCancelled(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled += n
}

func (f *fakeRecorder) RecordResync(live int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncs++
	f.live = live
}

func TestRecorder(t *testing.T) {
	n, _ := newGranted(t)
	rec := &fakeRecorder{}
	s := newScheduler(n, WithRecorder(rec))

	s.ScheduleAllNotifications(context.Background(), []core.Subscription{
		sub("a", daysFromToday(10)),
		sub("b", daysFromToday(-1)),
	})
	s.ScheduleAllNotifications(context.Background(), []core.Subscription{sub("a", daysFromToday(10))})

	assert.Equal(t, 2, rec.outcomes["scheduled"])
	assert.Equal(t, 1, rec.outcomes["past_due"])
	assert.Equal(t, 1, rec.cancelled)
	assert.Equal(t, 2, rec.resyncs)
	assert.Equal(t, 1, rec.live)
}

func TestSchedule_ConcurrentSameID(t *testing.T) {
	n, _ := newGranted(t)
	s := newScheduler(n)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.ScheduleRenewalNotification(context.Background(), sub("a", daysFromToday(10+i%3)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, tagged(t, n, "a"), 1)
	assert.Zero(t, s.locks.size())
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeScheduled, OutcomeOf(nil))
	assert.Equal(t, OutcomePastDue, OutcomeOf(errors.Join(errors.New("x"), core.ErrPastDue)))
	assert.Equal(t, OutcomePermissionDenied, OutcomeOf(core.ErrPermissionDenied))
	assert.Equal(t, OutcomeFailed, OutcomeOf(errors.New("boom")))
}

func TestPruneOrphans(t *testing.T) {
	ctx := context.Background()
	n, store := newGranted(t)
	s := newScheduler(n)

	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("kept", daysFromToday(10))))
	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("gone", daysFromToday(10))))
	require.NoError(t, store.InsertNotification(ctx, notify.Notification{Identifier: "foreign", Trigger: daysFromToday(3)}))

	pruned, err := s.PruneOrphans(ctx, []core.Subscription{sub("kept", daysFromToday(10))}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)
	assert.Len(t, tagged(t, n, "kept"), 1)
	assert.Empty(t, tagged(t, n, "gone"))

	all, err := n.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPruneOrphans_RechecksStoreBeforeCancelling(t *testing.T) {
	ctx := context.Background()
	n, _ := newGranted(t)
	s := newScheduler(n)

	// "late" was stored after the list passed to PruneOrphans was loaded.
	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("late", daysFromToday(10))))
	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("gone", daysFromToday(10))))
	require.NoError(t, s.ScheduleRenewalNotification(ctx, sub("unknown", daysFromToday(10))))

	var looked []string
	exists := func(_ context.Context, id string) (bool, error) {
		looked = append(looked, id)
		switch id {
		case "late":
			return true, nil
		case "unknown":
			return false, errors.New("store offline")
		}
		return false, nil
	}

	pruned, err := s.PruneOrphans(ctx, nil, exists)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
	assert.Equal(t, 1, pruned)
	assert.ElementsMatch(t, []string{"late", "gone", "unknown"}, looked)

	assert.Len(t, tagged(t, n, "late"), 1)
	assert.Len(t, tagged(t, n, "unknown"), 1)
	assert.Empty(t, tagged(t, n, "gone"))
	assert.Zero(t, s.locks.size())
}
