package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/core"
	"subtrack/internal/notify"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "subtrack.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func testSub(id, name string, renewal time.Time) core.Subscription {
	return core.Subscription{
		ID:          id,
		Name:        name,
		Price:       core.Money{Cents: 999},
		Cycle:       core.Yearly,
		RenewalDate: renewal,
		Notes:       "family plan",
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSubscriptions_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	empty, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	later := testSub("b", "Spotify", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	sooner := testSub("a", "Netflix", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.SaveAll(ctx, []core.Subscription{later, sooner}))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.True(t, sooner.RenewalDate.Equal(got[0].RenewalDate))
	assert.Equal(t, core.Yearly, got[0].Cycle)
	assert.Equal(t, int64(999), got[0].Price.Cents)
	assert.Equal(t, "family plan", got[0].Notes)
}

func TestSaveAll_ReplacesCollection(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	renewal := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveAll(ctx, []core.Subscription{testSub("a", "A", renewal), testSub("b", "B", renewal)}))
	require.NoError(t, repo.SaveAll(ctx, []core.Subscription{testSub("c", "C", renewal)}))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	renewal := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, testSub("a", "Netflix", renewal)))
	edited := testSub("a", "Netflix 4K", renewal.AddDate(0, 1, 0))
	require.NoError(t, repo.Upsert(ctx, edited))
	require.NoError(t, repo.Upsert(ctx, testSub("b", "Spotify", renewal)))

	remaining, err := repo.DeleteByID(ctx, "b")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Netflix 4K", remaining[0].Name)

	_, err = repo.DeleteByID(ctx, "b")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, repo.Close())

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestNotificationStore(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	granted, err := repo.PermissionGranted(ctx)
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, repo.InsertNotification(ctx, notify.Notification{
		Identifier: "n1",
		Content: notify.Content{
			Title:     "Renewal Reminder",
			Body:      "Netflix renews in 2 days - ₹15.49",
			Data:      map[string]string{notify.DataSubscriptionID: "a"},
			ChannelID: "sub-reminders",
		},
		Trigger:   base.Add(time.Hour),
		CreatedAt: base,
	}))
	require.NoError(t, repo.InsertNotification(ctx, notify.Notification{Identifier: "n0", Trigger: base}))

	all, err := repo.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "n0", all[0].Identifier)
	assert.Equal(t, "a", all[1].SubscriptionID())
	assert.Equal(t, "sub-reminders", all[1].Content.ChannelID)
	assert.True(t, base.Add(time.Hour).Equal(all[1].Trigger))

	due, err := repo.DueNotifications(ctx, base)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "n0", due[0].Identifier)

	removed, err := repo.DeleteNotification(ctx, "n0")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.DeleteNotification(ctx, "n0")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPermissionPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestRepo(t)
	require.NoError(t, repo.SetPermissionGranted(ctx, true))
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer reopened.Close()

	granted, err := reopened.PermissionGranted(ctx)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestLocalNotifierOverSQLite(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	n := notify.NewLocal(repo)

	_, err := n.RequestPermission(ctx)
	require.NoError(t, err)
	id, err := n.Schedule(ctx, notify.Content{Title: "t", Data: map[string]string{notify.DataSubscriptionID: "a"}}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, n.Cancel(ctx, id))
	list, err := n.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMigrationsRollBack(t *testing.T) {
	_, path := newTestRepo(t)
	require.NoError(t, RollbackMigrations(path))
	require.NoError(t, RunMigrations(path))
}
