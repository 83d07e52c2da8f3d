// Package service implements the dossier lifecycle: creation, lead edits,
// guarded status transitions and deletion. Every mutation and its audit event
// commit in one unit of work; every read and write is scoped to the caller's
// organization, and a dossier of another organization is reported as not
// found.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	auditmodels "crm/internal/audit/models"
	"crm/internal/dossier/metrics"
	"crm/internal/dossier/models"
	id "crm/pkg/domain"
	dErrors "crm/pkg/domain-errors"
	"crm/pkg/platform/pagination"
	"crm/pkg/platform/sentinel"
	txcontext "crm/pkg/platform/tx"
	"crm/pkg/requestcontext"
)

// Store persists dossiers. Every method is keyed by organization.
type Store interface {
	Create(ctx context.Context, d *models.Dossier) error
	FindByID(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error)
	FindForUpdate(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error)
	Update(ctx context.Context, d *models.Dossier, expectedVersion int64) error
	Delete(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, expectedVersion int64) error
	List(ctx context.Context, orgID id.OrgID, filter models.ListFilter, page pagination.Request) ([]*models.Dossier, int64, error)
	FindIDsByLeadPhone(ctx context.Context, orgID id.OrgID, phone string, excludeID id.DossierID) ([]id.DossierID, error)
}

// AuditRecorder appends audit events and reads an entity's history.
type AuditRecorder interface {
	Record(ctx context.Context, orgID id.OrgID, entityType auditmodels.EntityType, entityID string, action auditmodels.Action, changes auditmodels.Changes) (*auditmodels.Event, error)
	History(ctx context.Context, orgID id.OrgID, entityType auditmodels.EntityType, entityID string) ([]auditmodels.Event, error)
}

type Service struct {
	store   Store
	audit   AuditRecorder
	tx      txcontext.Transactor
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, recorder AuditRecorder, transactor txcontext.Transactor, opts ...Option) *Service {
	s := &Service{
		store:  store,
		audit:  recorder,
		tx:     transactor,
		logger: slog.Default(),
		tracer: otel.Tracer("crm/internal/dossier/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateResult carries the new dossier and the open dossiers of the same
// organization that already use its phone number.
type CreateResult struct {
	Dossier    *models.Dossier
	Duplicates []id.DossierID
}

// Get loads one dossier of the organization.
func (s *Service) Get(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error) {
	ctx, span := s.startSpan(ctx, "dossier.Get", orgID, attribute.String("dossier_id", dossierID.String()))
	d, err := s.store.FindByID(ctx, orgID, dossierID)
	if err != nil {
		err = translate(err, "failed to load dossier")
	}
	endSpan(span, err)
	return d, err
}

// Create validates req and stores a NEW dossier together with its CREATED event.
func (s *Service) Create(ctx context.Context, orgID id.OrgID, req models.CreateRequest) (*CreateResult, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "dossier.Create", orgID)
	result, err := s.create(ctx, orgID, req)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	s.observe("create", start)
	if s.metrics != nil {
		s.metrics.IncrementCreated()
		if len(result.Duplicates) > 0 {
			s.metrics.IncrementDuplicateWarnings()
		}
	}
	s.logger.InfoContext(ctx, "dossier created",
		"org_id", orgID.String(),
		"dossier_id", result.Dossier.ID.String(),
		"duplicates", len(result.Duplicates),
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

func (s *Service) create(ctx context.Context, orgID id.OrgID, req models.CreateRequest) (*CreateResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	at := now(ctx)
	d := models.NewDossier(orgID, req, at)

	var duplicates []id.DossierID
	err := s.tx.RunInTx(requestcontext.WithTime(ctx, at), func(ctx context.Context) error {
		var err error
		duplicates, err = s.store.FindIDsByLeadPhone(ctx, orgID, d.LeadPhone, d.ID)
		if err != nil {
			return translate(err, "failed to check duplicates")
		}
		if err := s.store.Create(ctx, d); err != nil {
			return translate(err, "failed to create dossier")
		}
		_, err = s.audit.Record(ctx, orgID, auditmodels.EntityDossier, d.ID.String(), auditmodels.ActionCreated, d.CreationChanges())
		return err
	})
	if err != nil {
		return nil, translate(err, "failed to create dossier")
	}
	if duplicates == nil {
		duplicates = []id.DossierID{}
	}
	return &CreateResult{Dossier: d, Duplicates: duplicates}, nil
}

// UpdateLead applies the set fields of patch. A patch that changes nothing
// writes nothing and records no event.
func (s *Service) UpdateLead(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, patch models.PatchLeadRequest) (*models.Dossier, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "dossier.UpdateLead", orgID, attribute.String("dossier_id", dossierID.String()))
	d, changed, err := s.updateLead(ctx, orgID, dossierID, patch)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	s.observe("update_lead", start)
	if changed > 0 {
		if s.metrics != nil {
			s.metrics.IncrementLeadUpdates()
		}
		s.logger.InfoContext(ctx, "dossier lead updated",
			"org_id", orgID.String(),
			"dossier_id", dossierID.String(),
			"fields", changed,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return d, nil
}

func (s *Service) updateLead(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, patch models.PatchLeadRequest) (*models.Dossier, int, error) {
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, 0, err
	}

	var (
		updated *models.Dossier
		changed int
	)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.store.FindForUpdate(ctx, orgID, dossierID)
		if err != nil {
			return translate(err, "failed to load dossier")
		}
		ctx, at := stampAfter(ctx, d)
		changes := d.ApplyLeadPatch(patch, at)
		updated, changed = d, len(changes)
		if changed == 0 {
			return nil
		}

		expected := d.Version
		d.Version = expected + 1
		if err := s.store.Update(ctx, d, expected); err != nil {
			return translate(err, "failed to update dossier")
		}
		_, err = s.audit.Record(ctx, orgID, auditmodels.EntityDossier, d.ID.String(), auditmodels.ActionUpdated, changes)
		return err
	})
	if err != nil {
		return nil, 0, translate(err, "failed to update dossier")
	}
	return updated, changed, nil
}

// Transition moves a dossier to req's target status when the lifecycle
// allows it. There is no retry: a concurrent change surfaces as a conflict.
func (s *Service) Transition(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, req models.TransitionRequest) (*models.Dossier, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "dossier.Transition", orgID, attribute.String("dossier_id", dossierID.String()))
	d, from, err := s.transition(ctx, orgID, dossierID, req)
	if err == nil {
		span.SetAttributes(attribute.String("from", string(from)), attribute.String("to", string(d.Status)))
	}
	endSpan(span, err)
	if err != nil {
		s.rejected(ctx, orgID, dossierID, req, err)
		return nil, err
	}

	s.observe("transition", start)
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(from), string(d.Status))
	}
	s.logger.InfoContext(ctx, "dossier status changed",
		"org_id", orgID.String(),
		"dossier_id", dossierID.String(),
		"from", string(from),
		"to", string(d.Status),
		"request_id", requestcontext.RequestID(ctx),
	)
	return d, nil
}

func (s *Service) transition(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, req models.TransitionRequest) (*models.Dossier, models.Status, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, "", err
	}
	target, err := models.ParseStatus(req.Status)
	if err != nil {
		return nil, "", err
	}

	var (
		updated *models.Dossier
		from    models.Status
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.store.FindForUpdate(ctx, orgID, dossierID)
		if err != nil {
			return translate(err, "failed to load dossier")
		}
		from = d.Status
		ctx, at := stampAfter(ctx, d)
		changes, err := d.ApplyTransition(target, req, at)
		if err != nil {
			return err
		}

		expected := d.Version
		d.Version = expected + 1
		if err := s.store.Update(ctx, d, expected); err != nil {
			return translate(err, "failed to update dossier")
		}
		if _, err := s.audit.Record(ctx, orgID, auditmodels.EntityDossier, d.ID.String(), auditmodels.ActionUpdated, changes); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, "", translate(err, "failed to update dossier")
	}
	return updated, from, nil
}

func (s *Service) rejected(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, req models.TransitionRequest, err error) {
	reason := rejectionReason(err)
	if s.metrics != nil {
		s.metrics.IncrementRejected(reason)
	}
	level := slog.LevelInfo
	if reason == metrics.ReasonPersistence {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "dossier transition rejected",
		"org_id", orgID.String(),
		"dossier_id", dossierID.String(),
		"target", req.Status,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func rejectionReason(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvalidTransition:
		return metrics.ReasonInvalidTransition
	case dErrors.CodeValidation:
		return metrics.ReasonValidation
	case dErrors.CodeNotFound:
		return metrics.ReasonNotFound
	case dErrors.CodeConflict:
		return metrics.ReasonConflict
	default:
		return metrics.ReasonPersistence
	}
}

// Delete removes a dossier and records its last known values.
func (s *Service) Delete(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) error {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "dossier.Delete", orgID, attribute.String("dossier_id", dossierID.String()))
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.store.FindForUpdate(ctx, orgID, dossierID)
		if err != nil {
			return translate(err, "failed to load dossier")
		}
		ctx, _ = stampAfter(ctx, d)
		if err := s.store.Delete(ctx, orgID, dossierID, d.Version); err != nil {
			return translate(err, "failed to delete dossier")
		}
		_, err = s.audit.Record(ctx, orgID, auditmodels.EntityDossier, d.ID.String(), auditmodels.ActionDeleted, d.DeletionChanges())
		return err
	})
	if err != nil {
		err = translate(err, "failed to delete dossier")
	}
	endSpan(span, err)
	if err != nil {
		return err
	}

	s.observe("delete", start)
	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	s.logger.InfoContext(ctx, "dossier deleted",
		"org_id", orgID.String(),
		"dossier_id", dossierID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// List returns one page of the organization's dossiers, newest first.
func (s *Service) List(ctx context.Context, orgID id.OrgID, filter models.ListFilter, page pagination.Request) (pagination.Page[*models.Dossier], error) {
	ctx, span := s.startSpan(ctx, "dossier.List", orgID)
	defer span.End()

	if filter.Status != "" && !filter.Status.IsValid() {
		return pagination.Page[*models.Dossier]{}, dErrors.New(dErrors.CodeValidation, "unknown status: "+string(filter.Status))
	}
	filter.LeadPhone = models.CanonicalPhone(filter.LeadPhone)
	page = page.Normalize()

	dossiers, total, err := s.store.List(ctx, orgID, filter, page)
	if err != nil {
		err = translate(err, "failed to list dossiers")
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return pagination.Page[*models.Dossier]{}, err
	}
	return pagination.NewPage(dossiers, total, page), nil
}

// CheckDuplicates returns the open dossiers of the organization that use phone.
func (s *Service) CheckDuplicates(ctx context.Context, orgID id.OrgID, phone string) ([]id.DossierID, error) {
	ctx, span := s.startSpan(ctx, "dossier.CheckDuplicates", orgID)
	defer span.End()

	phone = models.CanonicalPhone(phone)
	if phone == "" {
		return []id.DossierID{}, nil
	}
	ids, err := s.store.FindIDsByLeadPhone(ctx, orgID, phone, id.DossierID{})
	if err != nil {
		return nil, translate(err, "failed to check duplicates")
	}
	if ids == nil {
		ids = []id.DossierID{}
	}
	return ids, nil
}

// StatusHistory rebuilds the status changes of a dossier from its audit trail,
// oldest first.
func (s *Service) StatusHistory(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) ([]models.StatusChange, error) {
	ctx, span := s.startSpan(ctx, "dossier.StatusHistory", orgID, attribute.String("dossier_id", dossierID.String()))
	defer span.End()

	if _, err := s.store.FindByID(ctx, orgID, dossierID); err != nil {
		return nil, translate(err, "failed to load dossier")
	}
	events, err := s.audit.History(ctx, orgID, auditmodels.EntityDossier, dossierID.String())
	if err != nil {
		return nil, err
	}
	return models.StatusHistoryFrom(events), nil
}

func (s *Service) startSpan(ctx context.Context, name string, orgID id.OrgID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("org_id", orgID.String()))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
}

// translate maps store facts to domain errors, including those raised by an
// in-memory unit of work at commit. Errors that already carry a domain code
// pass through unchanged.
func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "dossier not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "dossier was modified concurrently; reload and retry")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodePersistence, msg)
}

// stampAfter pins the change time of d, never before its last change, on
// ctx so the dossier row and its audit event carry the same instant.
func stampAfter(ctx context.Context, d *models.Dossier) (context.Context, time.Time) {
	at := d.EventTime(now(ctx))
	return requestcontext.WithTime(ctx, at), at
}

// now is the request time truncated to the precision PostgreSQL keeps.
func now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
}
