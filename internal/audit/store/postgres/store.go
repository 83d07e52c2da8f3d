package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crm/internal/audit/models"
	id "crm/pkg/domain"
	"crm/pkg/platform/pagination"
	txcontext "crm/pkg/platform/tx"
)

// Store persists audit events in the audit_events table. With the outbox
// enabled, each append also writes an audit_outbox row in the same
// transaction for the Kafka relay.
type Store struct {
	db     *sql.DB
	outbox bool
}

type Option func(*Store)

// WithOutbox enables the transactional outbox write.
func WithOutbox() Option {
	return func(s *Store) {
		s.outbox = true
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts the event. Callers run it inside the transaction of the
// mutation it describes.
func (s *Store) Append(ctx context.Context, event models.Event) error {
	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, org_id, entity_type, entity_id, action, changes, request_id, actor_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(event.ID),
		event.OrgID.String(),
		string(event.EntityType),
		event.EntityID,
		string(event.Action),
		changes,
		nullString(event.RequestID),
		nullString(event.ActorID),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	if !s.outbox {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_outbox (event_id, org_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(event.ID), event.OrgID.String(), payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// List returns the org's events newest first, ties broken by insertion sequence.
func (s *Store) List(ctx context.Context, orgID id.OrgID, filter models.Filter, page pagination.Request) ([]models.Event, int64, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID.String()}
	if filter.EntityType != "" {
		args = append(args, string(filter.EntityType))
		where = append(where, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`
		SELECT id, org_id, entity_type, entity_id, action, changes, request_id, actor_id, created_at
		FROM audit_events
		WHERE %s
		ORDER BY created_at DESC, seq DESC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)-1, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	events := []models.Event{}
	for rows.Next() {
		var (
			event              models.Event
			eventID            uuid.UUID
			orgID, entityType  string
			action             string
			changes            []byte
			requestID, actorID sql.NullString
			createdAt          time.Time
		)
		err := rows.Scan(&eventID, &orgID, &entityType, &event.EntityID, &action, &changes, &requestID, &actorID, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if err := json.Unmarshal(changes, &event.Changes); err != nil {
			return nil, fmt.Errorf("decode audit changes: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.OrgID = id.OrgID(orgID)
		event.EntityType = models.EntityType(entityType)
		event.Action = models.Action(action)
		event.RequestID = requestID.String
		event.ActorID = actorID.String
		event.CreatedAt = createdAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
