//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crm/internal/dossier/models"
	"crm/internal/dossier/store"
	id "crm/pkg/domain"
	"crm/pkg/platform/pagination"
	"crm/pkg/platform/sentinel"
	txcontext "crm/pkg/platform/tx"
	"crm/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	tx       *txcontext.PostgresTx
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.tx = txcontext.NewPostgres(s.postgres.DB, 5*time.Second)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_outbox", "audit_events", "dossiers")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) create(org id.OrgID, name, phone string, at time.Time) *models.Dossier {
	d := models.NewDossier(org, models.CreateRequest{LeadName: name, LeadPhone: phone}, at)
	s.Require().NoError(s.store.Create(context.Background(), d))
	return d
}

func (s *PostgresStoreSuite) TestRoundTripAndTenantScope() {
	ctx := context.Background()
	d := s.create("ORG-001", "Ana", "+33600000001", time.Now().UTC().Truncate(time.Microsecond))

	found, err := s.store.FindByID(ctx, "ORG-001", d.ID)
	s.Require().NoError(err)
	s.Equal(d.LeadName, found.LeadName)
	s.Equal(d.LeadPhone, found.LeadPhone)
	s.Equal(models.StatusNew, found.Status)
	s.True(d.CreatedAt.Equal(found.CreatedAt))

	_, err = s.store.FindByID(ctx, "ORG-002", d.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, "ORG-001", id.NewDossierID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestVersionedUpdateAndDelete() {
	ctx := context.Background()
	d := s.create("ORG-001", "Ana", "", time.Now().UTC())

	next := d.Clone()
	next.Status = models.StatusQualifying
	next.Version = 2
	s.Require().NoError(s.store.Update(ctx, next, 1))

	stale := d.Clone()
	stale.Status = models.StatusLost
	stale.Version = 2
	s.ErrorIs(s.store.Update(ctx, stale, 1), sentinel.ErrConflict)

	foreign := next.Clone()
	foreign.OrgID = "ORG-002"
	s.ErrorIs(s.store.Update(ctx, foreign, 2), sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(ctx, "ORG-001", d.ID, 1), sentinel.ErrConflict)
	s.Require().NoError(s.store.Delete(ctx, "ORG-001", d.ID, 2))
	_, err := s.store.FindByID(ctx, "ORG-001", d.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListAndDuplicates() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	a := s.create("ORG-001", "A", "+33600000009", base)
	b := s.create("ORG-001", "B", "+33600000009", base.Add(time.Second))
	s.create("ORG-001", "C", "+33600000010", base.Add(2*time.Second))
	s.create("ORG-002", "Foreign", "+33600000009", base)

	got, total, err := s.store.List(ctx, "ORG-001", models.ListFilter{}, pagination.Request{Number: 0, Size: 2})
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(got, 2)
	s.Equal("C", got[0].LeadName)

	got, total, err = s.store.List(ctx, "ORG-001", models.ListFilter{LeadPhone: "+33600000009", Status: models.StatusNew}, pagination.Request{Size: 10})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(got, 2)

	ids, err := s.store.FindIDsByLeadPhone(ctx, "ORG-001", "+33600000009", a.ID)
	s.Require().NoError(err)
	s.Equal([]id.DossierID{b.ID}, ids)
}

// A second unit trying to lock a row held by another fails fast.
func (s *PostgresStoreSuite) TestFindForUpdateFailsFastWhenLocked() {
	ctx := context.Background()
	d := s.create("ORG-001", "Ana", "", time.Now().UTC())

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if _, err := s.store.FindForUpdate(ctx, "ORG-001", d.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.store.FindForUpdate(ctx, "ORG-001", d.ID)
		return err
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	close(release)
	s.Require().NoError(<-done)
}

func (s *PostgresStoreSuite) TestConcurrentVersionedUpdates() {
	ctx := context.Background()
	d := s.create("ORG-001", "Ana", "", time.Now().UTC())

	const goroutines = 20
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := d.Clone()
			next.Status = models.StatusQualifying
			next.Version = 2
			err := s.store.Update(ctx, next, 1)
			switch {
			case err == nil:
				wins.Add(1)
			case isConflict(err):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func isConflict(err error) bool {
	return errors.Is(err, sentinel.ErrConflict)
}
