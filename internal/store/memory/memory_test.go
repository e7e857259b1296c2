package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/core"
)

func sample(id string) core.Subscription {
	return core.Subscription{
		ID:          id,
		Name:        "Netflix",
		Price:       core.Money{Cents: 1549},
		Cycle:       core.Monthly,
		RenewalDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upsert(ctx, sample("a")))
	require.NoError(t, s.Upsert(ctx, sample("b")))
	edited := sample("a")
	edited.Name = "Netflix 4K"
	require.NoError(t, s.Upsert(ctx, edited))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Netflix 4K", got[0].Name)

	remaining, err := s.DeleteByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []core.Subscription{sample("b")}, remaining)

	_, err = s.DeleteByID(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveAll(ctx, []core.Subscription{sample("a")}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	got[0].Name = "changed"

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Netflix", again[0].Name)
}

func TestStore_FilePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "subs.json")

	s := NewFile(path)
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SaveAll(ctx, []core.Subscription{sample("a"), sample("b")}))

	reopened := NewFile(path)
	got, err = reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1549), got[0].Price.Cents)
	assert.True(t, sample("a").RenewalDate.Equal(got[0].RenewalDate))
}

func TestStore_CorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	got, err := NewFile(path).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_WriteFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	// The parent "directory" is a regular file, so every write fails.
	s := NewFile(filepath.Join(blocker, "subs.json"))
	err := s.Upsert(ctx, sample("a"))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
