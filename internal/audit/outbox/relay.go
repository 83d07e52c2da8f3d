// Package outbox relays committed audit events from the audit_outbox table to
// Kafka. Delivery is at-least-once and runs after the request's transaction
// has committed, so a broker outage never fails a dossier mutation.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"

	txcontext "crm/pkg/platform/tx"
)

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	tx       txcontext.Transactor
	producer Producer
	topic    string
	batch    int
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithBatchSize bounds how many rows one pass claims.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithInterval sets the idle poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func New(db *sql.DB, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		tx:       txcontext.NewPostgres(db, 10*time.Second),
		producer: producer,
		topic:    topic,
		batch:    100,
		interval: time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another pass; otherwise the relay sleeps for the interval.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "audit outbox relay started", "topic", r.topic)
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.ErrorContext(ctx, "audit outbox relay pass failed", "error", err)
		}
		if n == r.batch && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "audit outbox relay stopped")
			return nil
		case <-time.After(r.interval):
		}
	}
}

type row struct {
	seq     int64
	orgID   string
	eventID string
	payload []byte
}

// RelayOnce claims up to one batch of pending rows, publishes them and marks
// the delivered ones. Rows locked by a concurrent relay are skipped.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		sqlTx, _ := txcontext.From(ctx)
		rows, err := claim(ctx, sqlTx, r.batch)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		records := make([]*kgo.Record, 0, len(rows))
		index := make(map[*kgo.Record]int, len(rows))
		for i, rw := range rows {
			rec := &kgo.Record{
				Topic: r.topic,
				Key:   []byte(rw.orgID),
				Value: rw.payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_id", Value: []byte(rw.eventID)},
				},
			}
			index[rec] = i
			records = append(records, rec)
		}

		results := r.producer.ProduceSync(ctx, records...)
		var delivered, failed []int64
		for _, res := range results {
			i, ok := index[res.Record]
			if !ok {
				continue
			}
			if res.Err != nil {
				failed = append(failed, rows[i].seq)
				r.logger.WarnContext(ctx, "audit outbox publish failed",
					"event_id", rows[i].eventID,
					"error", res.Err,
				)
				continue
			}
			delivered = append(delivered, rows[i].seq)
		}

		if len(delivered) > 0 {
			if _, err := sqlTx.ExecContext(ctx,
				`UPDATE audit_outbox SET published_at = NOW() WHERE seq = ANY($1)`,
				pq.Array(delivered)); err != nil {
				return fmt.Errorf("mark outbox published: %w", err)
			}
		}
		if len(failed) > 0 {
			if _, err := sqlTx.ExecContext(ctx,
				`UPDATE audit_outbox SET attempts = attempts + 1 WHERE seq = ANY($1)`,
				pq.Array(failed)); err != nil {
				return fmt.Errorf("mark outbox attempts: %w", err)
			}
		}
		published = len(delivered)
		r.observe(len(delivered), len(failed))
		return nil
	})
	return published, err
}

func claim(ctx context.Context, sqlTx *sql.Tx, limit int) ([]row, error) {
	rows, err := sqlTx.QueryContext(ctx, `
		SELECT seq, org_id, event_id::text, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.seq, &rw.orgID, &rw.eventID, &rw.payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

func (r *Relay) observe(delivered, failed int) {
	if r.metrics == nil {
		return
	}
	r.metrics.Published.Add(float64(delivered))
	r.metrics.Failed.Add(float64(failed))
}
