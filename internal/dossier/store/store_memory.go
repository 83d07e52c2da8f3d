package store

import (
	"context"
	"fmt"
	"sort"

	"crm/internal/dossier/models"
	id "crm/pkg/domain"
	"crm/pkg/platform/memtx"
	"crm/pkg/platform/pagination"
	"crm/pkg/platform/sentinel"
)

// InMemory keeps dossiers in maps partitioned by organization. Every lookup
// goes through the caller's org partition, so a foreign id is simply absent.
type InMemory struct {
	lock     *memtx.Lock
	dossiers map[id.OrgID]map[id.DossierID]*models.Dossier
	// created orders dossiers with identical timestamps by insertion.
	created map[id.DossierID]uint64
	seq     uint64
}

// NewInMemory builds a store bound to the unit-of-work lock it shares with
// the audit store.
func NewInMemory(lock *memtx.Lock) *InMemory {
	return &InMemory{
		lock:     lock,
		dossiers: make(map[id.OrgID]map[id.DossierID]*models.Dossier),
		created:  make(map[id.DossierID]uint64),
	}
}

func (s *InMemory) Create(ctx context.Context, d *models.Dossier) error {
	stored := d.Clone()
	return memtx.Write(ctx, s.lock,
		func() error {
			if _, ok := s.created[stored.ID]; ok {
				return fmt.Errorf("dossier %s: %w", stored.ID, sentinel.ErrConflict)
			}
			return nil
		},
		func() {
			part, ok := s.dossiers[stored.OrgID]
			if !ok {
				part = make(map[id.DossierID]*models.Dossier)
				s.dossiers[stored.OrgID] = part
			}
			part[stored.ID] = stored
			s.seq++
			s.created[stored.ID] = s.seq
		},
	)
}

func (s *InMemory) FindByID(_ context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	d, ok := s.dossiers[orgID][dossierID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

// FindForUpdate reads the committed row. Lost updates are caught by the
// version check in Update when the unit commits.
func (s *InMemory) FindForUpdate(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error) {
	return s.FindByID(ctx, orgID, dossierID)
}

// Update replaces the dossier if the stored version still equals expectedVersion.
func (s *InMemory) Update(ctx context.Context, d *models.Dossier, expectedVersion int64) error {
	stored := d.Clone()
	return memtx.Write(ctx, s.lock,
		func() error {
			cur, ok := s.dossiers[stored.OrgID][stored.ID]
			if !ok {
				return sentinel.ErrNotFound
			}
			if cur.Version != expectedVersion {
				return fmt.Errorf("dossier %s version %d, expected %d: %w", stored.ID, cur.Version, expectedVersion, sentinel.ErrConflict)
			}
			return nil
		},
		func() {
			s.dossiers[stored.OrgID][stored.ID] = stored
		},
	)
}

func (s *InMemory) Delete(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, expectedVersion int64) error {
	return memtx.Write(ctx, s.lock,
		func() error {
			cur, ok := s.dossiers[orgID][dossierID]
			if !ok {
				return sentinel.ErrNotFound
			}
			if cur.Version != expectedVersion {
				return fmt.Errorf("dossier %s: %w", dossierID, sentinel.ErrConflict)
			}
			return nil
		},
		func() {
			delete(s.dossiers[orgID], dossierID)
			delete(s.created, dossierID)
		},
	)
}

// List returns one page of the org's dossiers, newest first.
func (s *InMemory) List(_ context.Context, orgID id.OrgID, filter models.ListFilter, page pagination.Request) ([]*models.Dossier, int64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var matched []*models.Dossier
	for _, d := range s.dossiers[orgID] {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.LeadPhone != "" && d.LeadPhone != filter.LeadPhone {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return s.created[matched[i].ID] > s.created[matched[j].ID]
	})

	window := pagination.Slice(matched, page)
	out := make([]*models.Dossier, 0, len(window))
	for _, d := range window {
		out = append(out, d.Clone())
	}
	return out, int64(len(matched)), nil
}

// FindIDsByLeadPhone returns ids of the org's non-terminal dossiers sharing
// phone, excluding excludeID.
func (s *InMemory) FindIDsByLeadPhone(_ context.Context, orgID id.OrgID, phone string, excludeID id.DossierID) ([]id.DossierID, error) {
	if phone == "" {
		return []id.DossierID{}, nil
	}
	s.lock.RLock()
	defer s.lock.RUnlock()

	var matched []*models.Dossier
	for _, d := range s.dossiers[orgID] {
		if d.ID == excludeID || d.LeadPhone != phone || d.Status.IsTerminal() {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool {
		return s.created[matched[i].ID] < s.created[matched[j].ID]
	})
	ids := make([]id.DossierID, 0, len(matched))
	for _, d := range matched {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
