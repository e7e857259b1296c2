package storage

import (
	"context"
	"database/sql"
	"errors"
)

const subscriptionColumns = `id, name, price_cents, cycle, renewal_at_ms, notes, created_at_ms`

const listSubscriptions = `SELECT ` + subscriptionColumns + `
FROM subscriptions
ORDER BY renewal_at_ms, id`

func (q *Queries) ListSubscriptions(ctx context.Context) ([]SubscriptionRow, error) {
	rows, err := q.db.QueryContext(ctx, listSubscriptions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SubscriptionRow
	for rows.Next() {
		var i SubscriptionRow
		if err := rows.Scan(&i.ID, &i.Name, &i.PriceCents, &i.Cycle, &i.RenewalAtMs, &i.Notes, &i.CreatedAtMs); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const upsertSubscription = `INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    price_cents = excluded.price_cents,
    cycle = excluded.cycle,
    renewal_at_ms = excluded.renewal_at_ms,
    notes = excluded.notes`

func (q *Queries) UpsertSubscription(ctx context.Context, arg SubscriptionRow) error {
	_, err := q.db.ExecContext(ctx, upsertSubscription,
		arg.ID, arg.Name, arg.PriceCents, arg.Cycle, arg.RenewalAtMs, arg.Notes, arg.CreatedAtMs)
	return err
}

const deleteSubscription = `DELETE FROM subscriptions WHERE id = ?`

func (q *Queries) DeleteSubscription(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSubscription, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAllSubscriptions = `DELETE FROM subscriptions`

func (q *Queries) DeleteAllSubscriptions(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllSubscriptions)
	return err
}

const notificationColumns = `identifier, subscription_id, title, body, data_json, channel_id, trigger_at_ms, created_at_ms`

const insertNotification = `INSERT INTO scheduled_notifications (` + notificationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertNotification(ctx context.Context, arg NotificationRow) error {
	_, err := q.db.ExecContext(ctx, insertNotification,
		arg.Identifier, arg.SubscriptionID, arg.Title, arg.Body, arg.DataJSON, arg.ChannelID, arg.TriggerAtMs, arg.CreatedAtMs)
	return err
}

const listNotifications = `SELECT ` + notificationColumns + `
FROM scheduled_notifications
ORDER BY trigger_at_ms, identifier`

func (q *Queries) ListNotifications(ctx context.Context) ([]NotificationRow, error) {
	return q.queryNotifications(ctx, listNotifications)
}

const dueNotifications = `SELECT ` + notificationColumns + `
FROM scheduled_notifications
WHERE trigger_at_ms <= ?
ORDER BY trigger_at_ms, identifier`

func (q *Queries) DueNotifications(ctx context.Context, nowMs int64) ([]NotificationRow, error) {
	return q.queryNotifications(ctx, dueNotifications, nowMs)
}

func (q *Queries) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]NotificationRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NotificationRow
	for rows.Next() {
		var i NotificationRow
		if err := rows.Scan(&i.Identifier, &i.SubscriptionID, &i.Title, &i.Body, &i.DataJSON, &i.ChannelID, &i.TriggerAtMs, &i.CreatedAtMs); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const deleteNotification = `DELETE FROM scheduled_notifications WHERE identifier = ?`

func (q *Queries) DeleteNotification(ctx context.Context, identifier string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteNotification, identifier)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSetting = `SELECT value FROM settings WHERE key = ?`

// GetSetting returns ok=false when the key was never written.
func (q *Queries) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = q.db.QueryRowContext(ctx, getSetting, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

const putSetting = `INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`

func (q *Queries) PutSetting(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, putSetting, key, value)
	return err
}
