//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"crm/internal/audit/models"
	"crm/internal/audit/outbox"
	auditpg "crm/internal/audit/store/postgres"
	id "crm/pkg/domain"
	"crm/pkg/testutil/containers"
)

// flakyProducer fails every record while down is set.
type flakyProducer struct {
	down  atomic.Bool
	count atomic.Int64
}

func (p *flakyProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		var err error
		if p.down.Load() {
			err = errors.New("broker unavailable")
		} else {
			p.count.Add(1)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: err})
	}
	return results
}

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpg.Store
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpg.New(s.postgres.DB, auditpg.WithOutbox())
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_outbox", "audit_events"))
}

func (s *RelaySuite) appendEvents(org id.OrgID, n int) []models.Event {
	events := make([]models.Event, 0, n)
	for i := 0; i < n; i++ {
		e := models.Event{
			ID:         id.NewEventID(),
			OrgID:      org,
			EntityType: models.EntityDossier,
			EntityID:   "d-1",
			Action:     models.ActionUpdated,
			Changes:    models.Changes{},
			CreatedAt:  time.Now().UTC(),
		}
		s.Require().NoError(s.store.Append(context.Background(), e))
		events = append(events, e)
	}
	return events
}

func (s *RelaySuite) pending() int {
	var n int
	err := s.postgres.DB.QueryRow(`SELECT COUNT(*) FROM audit_outbox WHERE published_at IS NULL`).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *RelaySuite) TestFailedPublishIsRetried() {
	s.appendEvents("ORG-001", 3)
	producer := &flakyProducer{}
	producer.down.Store(true)
	m := outbox.NewMetrics(prometheus.NewRegistry())
	relay := outbox.New(s.postgres.DB, producer, "crm.audit-events", outbox.WithMetrics(m))

	n, err := relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
	s.Equal(3, s.pending())
	s.Equal(3.0, testutil.ToFloat64(m.Failed))

	var attempts int
	s.Require().NoError(s.postgres.DB.QueryRow(`SELECT MAX(attempts) FROM audit_outbox`).Scan(&attempts))
	s.Equal(1, attempts)

	producer.down.Store(false)
	n, err = relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Zero(s.pending())
	s.Equal(3.0, testutil.ToFloat64(m.Published))

	n, err = relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
	s.Equal(int64(3), producer.count.Load())
}

func (s *RelaySuite) TestBatchSizeBoundsOnePass() {
	s.appendEvents("ORG-001", 5)
	relay := outbox.New(s.postgres.DB, &flakyProducer{}, "crm.audit-events", outbox.WithBatchSize(2))

	n, err := relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Equal(3, s.pending())
}

func (s *RelaySuite) TestDeliversToRedpanda() {
	broker := containers.GetManager().GetRedpanda(s.T())
	const topic = "crm.audit-events.test"
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	producer, err := outbox.NewClient(broker.Brokers, topic)
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(outbox.EnsureTopic(ctx, producer, topic, 1, 1))
	s.Require().NoError(outbox.EnsureTopic(ctx, producer, topic, 1, 1), "second create is a no-op")

	events := s.appendEvents("ORG-007", 2)
	relay := outbox.New(s.postgres.DB, producer, topic)
	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []models.Event
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err())
		fetches.EachRecord(func(r *kgo.Record) {
			s.Equal("ORG-007", string(r.Key))
			var e models.Event
			s.Require().NoError(json.Unmarshal(r.Value, &e))
			got = append(got, e)
		})
	}
	s.ElementsMatch([]id.EventID{events[0].ID, events[1].ID}, []id.EventID{got[0].ID, got[1].ID})
}
