package memory

import (
	"context"
	"sort"

	"crm/internal/audit/models"
	id "crm/pkg/domain"
	"crm/pkg/platform/memtx"
	"crm/pkg/platform/pagination"
)

type record struct {
	seq   uint64
	event models.Event
}

// InMemoryStore is an append-only event log partitioned by organization.
// There is deliberately no update or delete.
type InMemoryStore struct {
	lock   *memtx.Lock
	events map[id.OrgID][]record
	seq    uint64
}

// NewInMemoryStore binds the store to the unit-of-work lock shared with the
// dossier store, so an event and its mutation become visible together.
func NewInMemoryStore(lock *memtx.Lock) *InMemoryStore {
	return &InMemoryStore{lock: lock, events: make(map[id.OrgID][]record)}
}

func (s *InMemoryStore) Append(ctx context.Context, event models.Event) error {
	event.Changes = copyChanges(event.Changes)
	return memtx.Write(ctx, s.lock, nil, func() {
		s.seq++
		s.events[event.OrgID] = append(s.events[event.OrgID], record{seq: s.seq, event: event})
	})
}

// List returns the org's events newest first; equal timestamps fall back to
// append order.
func (s *InMemoryStore) List(_ context.Context, orgID id.OrgID, filter models.Filter, page pagination.Request) ([]models.Event, int64, error) {
	s.lock.RLock()
	var matched []record
	for _, r := range s.events[orgID] {
		if filter.Matches(r.event) {
			matched = append(matched, r)
		}
	}
	s.lock.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.event.CreatedAt.Equal(b.event.CreatedAt) {
			return a.event.CreatedAt.After(b.event.CreatedAt)
		}
		return a.seq > b.seq
	})

	window := pagination.Slice(matched, page)
	out := make([]models.Event, 0, len(window))
	for _, r := range window {
		e := r.event
		e.Changes = copyChanges(e.Changes)
		out = append(out, e)
	}
	return out, int64(len(matched)), nil
}

func copyChanges(c models.Changes) models.Changes {
	out := make(models.Changes, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
