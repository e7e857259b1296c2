package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/notify"

	_ "modernc.org/sqlite"
)

const settingPermission = "notifications.permission_granted"

// SQLiteRepository persists subscriptions and the local notification
// schedule in one SQLite database.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Load(ctx context.Context) ([]core.Subscription, error) {
	rows, err := r.queries.ListSubscriptions(ctx)
	if err != nil {
		return nil, core.Unavailable("load subscriptions", err)
	}
	subs := make([]core.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, fromSubscriptionRow(row))
	}
	return subs, nil
}

// SaveAll replaces the whole collection in one transaction.
func (r *SQLiteRepository) SaveAll(ctx context.Context, subs []core.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Unavailable("begin save", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.DeleteAllSubscriptions(ctx); err != nil {
		return core.Unavailable("clear subscriptions", err)
	}
	for _, s := range subs {
		if err := q.UpsertSubscription(ctx, toSubscriptionRow(s)); err != nil {
			return core.Unavailable("save subscription "+s.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return core.Unavailable("commit save", err)
	}

	slog.DebugContext(ctx, "Subscriptions saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldCount, len(subs))
	return nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, s core.Subscription) error {
	if err := r.queries.UpsertSubscription(ctx, toSubscriptionRow(s)); err != nil {
		return core.Unavailable("upsert subscription "+s.ID, err)
	}
	return nil
}

// DeleteByID removes one subscription and returns the remaining collection.
// core.ErrNotFound is returned when no row matched.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) ([]core.Subscription, error) {
	n, err := r.queries.DeleteSubscription(ctx, id)
	if err != nil {
		return nil, core.Unavailable("delete subscription "+id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	return r.Load(ctx)
}

func (r *SQLiteRepository) InsertNotification(ctx context.Context, n notify.Notification) error {
	data, err := json.Marshal(n.Content.Data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}
	err = r.queries.InsertNotification(ctx, NotificationRow{
		Identifier:     n.Identifier,
		SubscriptionID: n.SubscriptionID(),
		Title:          n.Content.Title,
		Body:           n.Content.Body,
		DataJSON:       string(data),
		ChannelID:      n.Content.ChannelID,
		TriggerAtMs:    n.Trigger.UnixMilli(),
		CreatedAtMs:    n.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return core.Unavailable("insert notification", err)
	}
	return nil
}

func (r *SQLiteRepository) ListNotifications(ctx context.Context) ([]notify.Notification, error) {
	rows, err := r.queries.ListNotifications(ctx)
	if err != nil {
		return nil, core.Unavailable("list notifications", err)
	}
	return fromNotificationRows(rows)
}

func (r *SQLiteRepository) DueNotifications(ctx context.Context, now time.Time) ([]notify.Notification, error) {
	rows, err := r.queries.DueNotifications(ctx, now.UnixMilli())
	if err != nil {
		return nil, core.Unavailable("list due notifications", err)
	}
	return fromNotificationRows(rows)
}

func (r *SQLiteRepository) DeleteNotification(ctx context.Context, identifier string) (bool, error) {
	n, err := r.queries.DeleteNotification(ctx, identifier)
	if err != nil {
		return false, core.Unavailable("delete notification", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) PermissionGranted(ctx context.Context) (bool, error) {
	v, ok, err := r.queries.GetSetting(ctx, settingPermission)
	if err != nil {
		return false, core.Unavailable("read permission", err)
	}
	if !ok {
		return false, nil
	}
	granted, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse permission setting %q: %w", v, err)
	}
	return granted, nil
}

func (r *SQLiteRepository) SetPermissionGranted(ctx context.Context, granted bool) error {
	if err := r.queries.PutSetting(ctx, settingPermission, strconv.FormatBool(granted)); err != nil {
		return core.Unavailable("store permission", err)
	}
	return nil
}

func toSubscriptionRow(s core.Subscription) SubscriptionRow {
	return SubscriptionRow{
		ID:          s.ID,
		Name:        s.Name,
		PriceCents:  s.Price.Cents,
		Cycle:       string(s.Cycle.OrDefault()),
		RenewalAtMs: s.RenewalDate.UnixMilli(),
		Notes:       s.Notes,
		CreatedAtMs: s.CreatedAt.UnixMilli(),
	}
}

func fromSubscriptionRow(row SubscriptionRow) core.Subscription {
	return core.Subscription{
		ID:          row.ID,
		Name:        row.Name,
		Price:       core.Money{Cents: row.PriceCents},
		Cycle:       core.Cycle(row.Cycle),
		RenewalDate: time.UnixMilli(row.RenewalAtMs).UTC(),
		Notes:       row.Notes,
		CreatedAt:   time.UnixMilli(row.CreatedAtMs).UTC(),
	}
}

func fromNotificationRows(rows []NotificationRow) ([]notify.Notification, error) {
	out := make([]notify.Notification, 0, len(rows))
	for _, row := range rows {
		var data map[string]string
		if err := json.Unmarshal([]byte(row.DataJSON), &data); err != nil {
			return nil, fmt.Errorf("decode notification %s data: %w", row.Identifier, err)
		}
		out = append(out, notify.Notification{
			Identifier: row.Identifier,
			Content: notify.Content{
				Title:     row.Title,
				Body:      row.Body,
				Data:      data,
				ChannelID: row.ChannelID,
			},
			Trigger:   time.UnixMilli(row.TriggerAtMs).UTC(),
			CreatedAt: time.UnixMilli(row.CreatedAtMs).UTC(),
		})
	}
	return out, nil
}

var _ notify.Store = (*SQLiteRepository)(nil)
