//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crm/internal/audit/models"
	auditpg "crm/internal/audit/store/postgres"
	id "crm/pkg/domain"
	"crm/pkg/platform/pagination"
	txcontext "crm/pkg/platform/tx"
	"crm/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpg.Store
	tx       *txcontext.PostgresTx
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpg.New(s.postgres.DB, auditpg.WithOutbox())
	s.tx = txcontext.NewPostgres(s.postgres.DB, 5*time.Second)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_outbox", "audit_events"))
}

func (s *AuditStoreSuite) event(org id.OrgID, entityID string, action models.Action, at time.Time) models.Event {
	return models.Event{
		ID:         id.NewEventID(),
		OrgID:      org,
		EntityType: models.EntityDossier,
		EntityID:   entityID,
		Action:     action,
		Changes:    models.Changes{"status": {From: "NEW", To: "QUALIFYING"}},
		RequestID:  "req-1",
		CreatedAt:  at,
	}
}

func (s *AuditStoreSuite) TestAppendRoundTrip() {
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Microsecond)
	e := s.event("ORG-001", "d-1", models.ActionUpdated, at)
	e.Changes["leadEmail"] = models.FieldChange{From: nil, To: "ana@example.com"}
	s.Require().NoError(s.store.Append(ctx, e))

	events, total, err := s.store.List(ctx, "ORG-001", models.Filter{}, pagination.Request{Size: 10})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(events, 1)
	got := events[0]
	s.Equal(e.ID, got.ID)
	s.Equal(e.Changes, got.Changes)
	s.Equal("req-1", got.RequestID)
	s.Empty(got.ActorID)
	s.True(at.Equal(got.CreatedAt))
}

func (s *AuditStoreSuite) TestListFiltersAndTenantScope() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Append(ctx, s.event("ORG-001", "d-1", models.ActionCreated, base)))
	s.Require().NoError(s.store.Append(ctx, s.event("ORG-001", "d-1", models.ActionUpdated, base)))
	s.Require().NoError(s.store.Append(ctx, s.event("ORG-001", "d-2", models.ActionCreated, base.Add(time.Second))))
	s.Require().NoError(s.store.Append(ctx, s.event("ORG-002", "d-1", models.ActionCreated, base)))

	events, total, err := s.store.List(ctx, "ORG-001", models.Filter{EntityID: "d-1"}, pagination.Request{Size: 10})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(events, 2)
	s.Equal(models.ActionUpdated, events[0].Action)
	s.Equal(models.ActionCreated, events[1].Action)

	events, total, err = s.store.List(ctx, "ORG-001", models.Filter{Action: models.ActionCreated}, pagination.Request{Size: 1})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(events, 1)
	s.Equal("d-2", events[0].EntityID)

	_, total, err = s.store.List(ctx, "ORG-003", models.Filter{}, pagination.Request{Size: 10})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *AuditStoreSuite) TestOutboxRowWrittenWithEvent() {
	ctx := context.Background()
	e := s.event("ORG-001", "d-1", models.ActionCreated, time.Now().UTC())
	s.Require().NoError(s.store.Append(ctx, e))

	var payload []byte
	var orgID string
	err := s.postgres.DB.QueryRowContext(ctx,
		`SELECT org_id, payload FROM audit_outbox WHERE event_id = $1`, e.ID.String()).Scan(&orgID, &payload)
	s.Require().NoError(err)
	s.Equal("ORG-001", orgID)

	var decoded models.Event
	s.Require().NoError(json.Unmarshal(payload, &decoded))
	s.Equal(e.ID, decoded.ID)
	s.Equal(models.ActionCreated, decoded.Action)
}

func (s *AuditStoreSuite) TestRollbackDiscardsEventAndOutbox() {
	ctx := context.Background()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, s.event("ORG-001", "d-1", models.ActionCreated, time.Now().UTC())))
		return errors.New("mutation failed")
	})
	s.Require().Error(err)

	var events, outbox int
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&events))
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_outbox`).Scan(&outbox))
	s.Zero(events)
	s.Zero(outbox)
}
