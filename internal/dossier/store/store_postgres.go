package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crm/internal/dossier/models"
	id "crm/pkg/domain"
	"crm/pkg/platform/pagination"
	"crm/pkg/platform/sentinel"
	txcontext "crm/pkg/platform/tx"
)

// PostgresStore persists dossiers in PostgreSQL. Every statement is keyed by
// org_id; there is no lookup by id alone.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const dossierColumns = `id, org_id, lead_name, lead_phone, lead_email, notes, status,
	loss_reason, won_reason, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Dossier) error {
	query := `
		INSERT INTO dossiers (` + dossierColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		d.OrgID.String(),
		d.LeadName,
		nullString(d.LeadPhone),
		nullString(d.LeadEmail),
		nullString(d.Notes),
		string(d.Status),
		nullString(d.LossReason),
		nullString(d.WonReason),
		d.Version,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return fmt.Errorf("dossier %s: %w", d.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert dossier: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error) {
	query := `SELECT ` + dossierColumns + ` FROM dossiers WHERE org_id = $1 AND id = $2`
	return s.findOne(ctx, query, orgID, dossierID)
}

// FindForUpdate locks the row until the enclosing transaction ends. A row
// already locked by another unit fails fast with ErrConflict instead of
// waiting, so a concurrent transition never proceeds from a state it did not
// observe.
func (s *PostgresStore) FindForUpdate(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error) {
	query := `SELECT ` + dossierColumns + ` FROM dossiers WHERE org_id = $1 AND id = $2 FOR UPDATE NOWAIT`
	return s.findOne(ctx, query, orgID, dossierID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error) {
	row := s.execer(ctx).QueryRowContext(ctx, query, orgID.String(), uuid.UUID(dossierID))
	d, err := scanDossier(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgLockNotAvailable {
			return nil, fmt.Errorf("dossier %s is locked: %w", dossierID, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("find dossier: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *models.Dossier, expectedVersion int64) error {
	query := `
		UPDATE dossiers
		SET lead_name = $3, lead_phone = $4, lead_email = $5, notes = $6, status = $7,
			loss_reason = $8, won_reason = $9, version = $10, updated_at = $11
		WHERE org_id = $1 AND id = $2 AND version = $12
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		d.OrgID.String(),
		uuid.UUID(d.ID),
		d.LeadName,
		nullString(d.LeadPhone),
		nullString(d.LeadEmail),
		nullString(d.Notes),
		string(d.Status),
		nullString(d.LossReason),
		nullString(d.WonReason),
		d.Version,
		d.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update dossier: %w", err)
	}
	return s.expectOneRow(ctx, res, d.OrgID, d.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, expectedVersion int64) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM dossiers WHERE org_id = $1 AND id = $2 AND version = $3`,
		orgID.String(), uuid.UUID(dossierID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("delete dossier: %w", err)
	}
	return s.expectOneRow(ctx, res, orgID, dossierID)
}

// expectOneRow distinguishes a stale version from a missing row when a
// guarded write touched nothing.
func (s *PostgresStore) expectOneRow(ctx context.Context, res sql.Result, orgID id.OrgID, dossierID id.DossierID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	err = s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM dossiers WHERE org_id = $1 AND id = $2)`,
		orgID.String(), uuid.UUID(dossierID),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check dossier existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("dossier %s: %w", dossierID, sentinel.ErrConflict)
}

func (s *PostgresStore) List(ctx context.Context, orgID id.OrgID, filter models.ListFilter, page pagination.Request) ([]*models.Dossier, int64, error) {
	where := []string{"org_id = $1"}
	args := []any{orgID.String()}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.LeadPhone != "" {
		args = append(args, filter.LeadPhone)
		where = append(where, fmt.Sprintf("lead_phone = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM dossiers WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dossiers: %w", err)
	}

	args = append(args, page.Size, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM dossiers WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		dossierColumns, clause, len(args)-1, len(args))
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dossiers: %w", err)
	}
	defer rows.Close()

	out := []*models.Dossier{}
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan dossier: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate dossiers: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) FindIDsByLeadPhone(ctx context.Context, orgID id.OrgID, phone string, excludeID id.DossierID) ([]id.DossierID, error) {
	if phone == "" {
		return []id.DossierID{}, nil
	}
	query := `
		SELECT id FROM dossiers
		WHERE org_id = $1 AND lead_phone = $2 AND id <> $3 AND status NOT IN ('WON', 'LOST')
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, orgID.String(), phone, uuid.UUID(excludeID))
	if err != nil {
		return nil, fmt.Errorf("find dossiers by phone: %w", err)
	}
	defer rows.Close()

	ids := []id.DossierID{}
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan dossier id: %w", err)
		}
		ids = append(ids, id.DossierID(u))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dossier ids: %w", err)
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDossier(row scanner) (*models.Dossier, error) {
	var (
		d                                          models.Dossier
		dossierID                                  uuid.UUID
		orgID, status                              string
		phone, email, notes, lossReason, wonReason sql.NullString
		createdAt, updatedAt                       time.Time
	)
	if err := row.Scan(&dossierID, &orgID, &d.LeadName, &phone, &email, &notes, &status,
		&lossReason, &wonReason, &d.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.ID = id.DossierID(dossierID)
	d.OrgID = id.OrgID(orgID)
	d.Status = models.Status(status)
	d.LeadPhone = phone.String
	d.LeadEmail = email.String
	d.Notes = notes.String
	d.LossReason = lossReason.String
	d.WonReason = wonReason.String
	d.CreatedAt = createdAt.UTC()
	d.UpdatedAt = updatedAt.UTC()
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
