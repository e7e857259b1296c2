// Package memory is an in-process subscription store, optionally backed by
// a single JSON file holding the whole collection.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/log"
	"subtrack/internal/store"
)

// record is the on-disk shape of a subscription.
type record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       string    `json:"price"`
	Cycle       string    `json:"cycle"`
	RenewalDate time.Time `json:"renewalDate"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type Store struct {
	mu    sync.Mutex
	path  string
	items []core.Subscription
}

// New returns a store that lives only in memory.
func New() *Store {
	return &Store{}
}

// NewFile returns a store persisted at path. A missing, unreadable or corrupt
// file loads as an empty collection.
func NewFile(path string) *Store {
	s := &Store{path: path}
	s.items = s.readFile()
	return s
}

func (s *Store) Load(_ context.Context) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Subscription(nil), s.items...), nil
}

func (s *Store) SaveAll(_ context.Context, subs []core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(append([]core.Subscription(nil), subs...))
}

func (s *Store) Upsert(_ context.Context, sub core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(store.ReplaceByID(s.items, sub))
}

func (s *Store) DeleteByID(_ context.Context, id string) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining, found := store.RemoveByID(s.items, id)
	if !found {
		return nil, fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	if err := s.commitLocked(remaining); err != nil {
		return nil, err
	}
	return append([]core.Subscription(nil), remaining...), nil
}

// commitLocked writes next to disk first and only then swaps it in, so a
// failed write leaves the previous collection visible.
func (s *Store) commitLocked(next []core.Subscription) error {
	if s.path != "" {
		if err := s.writeFile(next); err != nil {
			return core.Unavailable("write "+s.path, err)
		}
	}
	s.items = next
	return nil
}

func (s *Store) readFile() []core.Subscription {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Subscription file unreadable, starting empty",
				log.FieldComponent, log.ComponentStorage, "path", s.path, log.FieldError, err)
		}
		return nil
	}
	var recs []record
	if err := json.Unmarshal(b, &recs); err != nil {
		slog.Warn("Subscription file corrupt, starting empty",
			log.FieldComponent, log.ComponentStorage, "path", s.path, log.FieldError, err)
		return nil
	}
	subs := make([]core.Subscription, 0, len(recs))
	for _, r := range recs {
		cents, err := core.ParseDecimalToCents(r.Price)
		if err != nil {
			slog.Warn("Skipping stored subscription with bad price",
				log.FieldComponent, log.ComponentStorage, log.FieldSubscriptionID, r.ID, "price", r.Price)
			continue
		}
		cycle, err := core.ParseCycle(r.Cycle)
		if err != nil {
			cycle = core.Monthly
		}
		subs = append(subs, core.Subscription{
			ID:          r.ID,
			Name:        r.Name,
			Price:       core.Money{Cents: cents},
			Cycle:       cycle,
			RenewalDate: r.RenewalDate,
			Notes:       r.Notes,
			CreatedAt:   r.CreatedAt,
		})
	}
	return subs
}

func (s *Store) writeFile(subs []core.Subscription) error {
	recs := make([]record, 0, len(subs))
	for _, sub := range subs {
		recs = append(recs, record{
			ID:          sub.ID,
			Name:        sub.Name,
			Price:       sub.Price.String(),
			Cycle:       string(sub.Cycle.OrDefault()),
			RenewalDate: sub.RenewalDate,
			Notes:       sub.Notes,
			CreatedAt:   sub.CreatedAt,
		})
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ store.SubscriptionStore = (*Store)(nil)
