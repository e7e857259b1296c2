package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"subtrack/internal/core"
)

func TestReplaceByID(t *testing.T) {
	subs := []core.Subscription{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}

	got := ReplaceByID(subs, core.Subscription{ID: "a", Name: "A2"})
	assert.Equal(t, []core.Subscription{{ID: "a", Name: "A2"}, {ID: "b", Name: "B"}}, got)
	assert.Equal(t, "A", subs[0].Name)

	got = ReplaceByID(subs, core.Subscription{ID: "c", Name: "C"})
	assert.Len(t, got, 3)
	assert.Equal(t, "c", got[2].ID)
}

func TestRemoveByID(t *testing.T) {
	subs := []core.Subscription{{ID: "a"}, {ID: "b"}}

	got, ok := RemoveByID(subs, "a")
	assert.True(t, ok)
	assert.Equal(t, []core.Subscription{{ID: "b"}}, got)

	got, ok = RemoveByID(subs, "zzz")
	assert.False(t, ok)
	assert.Len(t, got, 2)
}
