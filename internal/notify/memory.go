package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]Notification
	permission bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Notification)}
}

func (s *MemoryStore) InsertNotification(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.Identifier] = cloneNotification(n)
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(Notification) bool { return true }), nil
}

func (s *MemoryStore) DeleteNotification(_ context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[identifier]; !ok {
		return false, nil
	}
	delete(s.items, identifier)
	return true, nil
}

func (s *MemoryStore) DueNotifications(_ context.Context, now time.Time) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(n Notification) bool { return !n.Trigger.After(now) }), nil
}

func (s *MemoryStore) PermissionGranted(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission, nil
}

func (s *MemoryStore) SetPermissionGranted(_ context.Context, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permission = granted
	return nil
}

func (s *MemoryStore) sortedLocked(keep func(Notification) bool) []Notification {
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if keep(n) {
			out = append(out, cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Trigger.Equal(out[j].Trigger) {
			return out[i].Identifier < out[j].Identifier
		}
		return out[i].Trigger.Before(out[j].Trigger)
	})
	return out
}

func cloneNotification(n Notification) Notification {
	if n.Content.Data != nil {
		data := make(map[string]string, len(n.Content.Data))
		for k, v := range n.Content.Data {
			data[k] = v
		}
		n.Content.Data = data
	}
	return n
}

var _ Store = (*MemoryStore)(nil)
