// Package notify is the local notification subsystem: it keeps the set of
// scheduled one-shot notifications and fires them once their trigger passes.
//
// It deliberately offers only schedule/cancel/list primitives. There is no
// in-place update; callers reschedule by cancelling and adding again.
package notify

import (
	"context"
	"time"
)

// DataSubscriptionID is the payload key tagging a notification with the
// subscription it was scheduled for.
const DataSubscriptionID = "subscriptionId"

type (
	// Content is the display payload of a notification.
	Content struct {
		Title     string            `json:"title"`
		Body      string            `json:"body"`
		Data      map[string]string `json:"data,omitempty"`
		ChannelID string            `json:"channel_id,omitempty"`
	}

	// Notification is a scheduled one-shot notification.
	Notification struct {
		Identifier string    `json:"identifier"`
		Content    Content   `json:"content"`
		Trigger    time.Time `json:"trigger"`
		CreatedAt  time.Time `json:"created_at"`
	}

	// Notifier is the contract the renewal scheduler consumes.
	Notifier interface {
		// RequestPermission is idempotent and reports whether scheduling is allowed.
		RequestPermission(ctx context.Context) (bool, error)
		// ListScheduled enumerates every live notification, whoever scheduled it.
		ListScheduled(ctx context.Context) ([]Notification, error)
		// Schedule registers a one-shot notification and returns its identifier.
		Schedule(ctx context.Context, content Content, trigger time.Time) (string, error)
		// Cancel removes a notification. Unknown identifiers are a no-op.
		Cancel(ctx context.Context, identifier string) error
	}

	// Store persists scheduled notifications and the permission flag.
	Store interface {
		InsertNotification(ctx context.Context, n Notification) error
		ListNotifications(ctx context.Context) ([]Notification, error)
		// DeleteNotification reports whether a row was removed.
		DeleteNotification(ctx context.Context, identifier string) (bool, error)
		DueNotifications(ctx context.Context, now time.Time) ([]Notification, error)
		PermissionGranted(ctx context.Context) (bool, error)
		SetPermissionGranted(ctx context.Context, granted bool) error
	}

	// Deliverer hands a fired notification to the outside world.
	Deliverer interface {
		Deliver(ctx context.Context, n Notification) error
	}
)

// SubscriptionID returns the subscription tag, or "" for foreign notifications.
func (n Notification) SubscriptionID() string {
	if n.Content.Data == nil {
		return ""
	}
	return n.Content.Data[DataSubscriptionID]
}
