// Package store defines the persistence port for subscriptions.
package store

import (
	"context"

	"subtrack/internal/core"
)

// SubscriptionStore is a whole-collection store of subscriptions keyed by ID.
// Backends wrap read and write failures with core.ErrStoreUnavailable.
type SubscriptionStore interface {
	// Load returns every stored subscription. An empty store is not an error.
	Load(ctx context.Context) ([]core.Subscription, error)
	// SaveAll replaces the entire collection.
	SaveAll(ctx context.Context, subs []core.Subscription) error
	// Upsert inserts or replaces one subscription by ID.
	Upsert(ctx context.Context, sub core.Subscription) error
	// DeleteByID removes one subscription and returns the remaining
	// collection. Missing IDs yield core.ErrNotFound.
	DeleteByID(ctx context.Context, id string) ([]core.Subscription, error)
}

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReplaceByID returns subs with sub swapped in for the element sharing its
// ID, or appended when no element does.
func ReplaceByID(subs []core.Subscription, sub core.Subscription) []core.Subscription {
	out := make([]core.Subscription, 0, len(subs)+1)
	replaced := false
	for _, s := range subs {
		if s.ID == sub.ID {
			out = append(out, sub)
			replaced = true
			continue
		}
		out = append(out, s)
	}
	if !replaced {
		out = append(out, sub)
	}
	return out
}

// RemoveByID returns subs without the element carrying id and whether one
// was removed.
func RemoveByID(subs []core.Subscription, id string) ([]core.Subscription, bool) {
	out := make([]core.Subscription, 0, len(subs))
	found := false
	for _, s := range subs {
		if s.ID == id {
			found = true
			continue
		}
		out = append(out, s)
	}
	return out, found
}
