package core

import (
	"math"
	"sort"
	"time"
)

// UpcomingWindowDays is how far ahead the summary looks for renewals.
const UpcomingWindowDays = 7

// UpcomingRenewal is a subscription renewing inside the upcoming window.
type UpcomingRenewal struct {
	Subscription Subscription
	DaysLeft     int
}

// Summary is the aggregate view shown on the home screen.
type Summary struct {
	Count        int
	MonthlyTotal Money
	Upcoming     []UpcomingRenewal
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysUntil counts whole days from the start of now's day to renewal,
// rounding partial days up. Past renewals yield negative values.
func DaysUntil(renewal, now time.Time) int {
	today := StartOfDay(now)
	diff := renewal.Sub(today).Hours() / 24
	return int(math.Ceil(diff))
}

// SortByRenewal orders subscriptions by ascending renewal date in place.
// Ties keep their relative order.
func SortByRenewal(subs []Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].RenewalDate.Before(subs[j].RenewalDate)
	})
}

// UrgentWindowDays marks renewals close enough to flag in the UI.
const UrgentWindowDays = 2

// RenewalStatus buckets a renewal by days left.
type RenewalStatus string

const (
	StatusOverdue  RenewalStatus = "overdue"
	StatusDueToday RenewalStatus = "due_today"
	StatusUrgent   RenewalStatus = "urgent"
	StatusUpcoming RenewalStatus = "upcoming"
)

func StatusFor(daysLeft int) RenewalStatus {
	switch {
	case daysLeft < 0:
		return StatusOverdue
	case daysLeft == 0:
		return StatusDueToday
	case daysLeft <= UrgentWindowDays:
		return StatusUrgent
	default:
		return StatusUpcoming
	}
}
