package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"subtrack/internal/core"
)

// Local implements Notifier on top of a Store.
type Local struct {
	store Store
	grant bool
	clock func() time.Time
	newID func() string
}

// LocalOption configures a Local notifier.
type LocalOption func(*Local)

// WithGrantPolicy sets the answer RequestPermission gives. Default true.
func WithGrantPolicy(grant bool) LocalOption {
	return func(l *Local) { l.grant = grant }
}

// WithClock overrides time.Now for CreatedAt stamps.
func WithClock(clock func() time.Time) LocalOption {
	return func(l *Local) { l.clock = clock }
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(gen func() string) LocalOption {
	return func(l *Local) { l.newID = gen }
}

func NewLocal(store Store, opts ...LocalOption) *Local {
	l := &Local{
		store: store,
		grant: true,
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RequestPermission records the configured grant policy and returns it.
func (l *Local) RequestPermission(ctx context.Context) (bool, error) {
	granted, err := l.store.PermissionGranted(ctx)
	if err != nil {
		return false, fmt.Errorf("read permission: %w", err)
	}
	if granted == l.grant {
		return granted, nil
	}
	if err := l.store.SetPermissionGranted(ctx, l.grant); err != nil {
		return false, fmt.Errorf("store permission: %w", err)
	}
	return l.grant, nil
}

func (l *Local) ListScheduled(ctx context.Context) ([]Notification, error) {
	return l.store.ListNotifications(ctx)
}

func (l *Local) Schedule(ctx context.Context, content Content, trigger time.Time) (string, error) {
	granted, err := l.store.PermissionGranted(ctx)
	if err != nil {
		return "", fmt.Errorf("read permission: %w", err)
	}
	if !granted {
		return "", core.ErrPermissionDenied
	}

	n := Notification{
		Identifier: l.newID(),
		Content:    content,
		Trigger:    trigger,
		CreatedAt:  l.clock(),
	}
	if err := l.store.InsertNotification(ctx, n); err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}
	return n.Identifier, nil
}

func (l *Local) Cancel(ctx context.Context, identifier string) error {
	if _, err := l.store.DeleteNotification(ctx, identifier); err != nil {
		return fmt.Errorf("delete notification %s: %w", identifier, err)
	}
	return nil
}

var _ Notifier = (*Local)(nil)
