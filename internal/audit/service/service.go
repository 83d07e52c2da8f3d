// Package service records and lists audit events.
//
// Record is fail-closed: if the event cannot be appended the error is
// returned and the calling mutation must fail with it. Callers invoke Record
// with the context of their unit of work so the event commits or rolls back
// together with the mutation it describes.
package service

import (
	"context"
	"log/slog"
	"time"

	"crm/internal/audit/metrics"
	"crm/internal/audit/models"
	id "crm/pkg/domain"
	dErrors "crm/pkg/domain-errors"
	"crm/pkg/platform/pagination"
	"crm/pkg/requestcontext"
)

// Store is an append-only event log.
type Store interface {
	Append(ctx context.Context, event models.Event) error
	List(ctx context.Context, orgID id.OrgID, filter models.Filter, page pagination.Request) ([]models.Event, int64, error)
}

type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event. The id, timestamp, request id and actor come
// from the context, never from the caller.
func (r *Recorder) Record(ctx context.Context, orgID id.OrgID, entityType models.EntityType, entityID string, action models.Action, changes models.Changes) (*models.Event, error) {
	start := time.Now()

	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "audit event requires an org id")
	}
	if !entityType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "audit event has an unknown entity type")
	}
	if entityID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "audit event requires an entity id")
	}
	if !action.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "audit event has an unknown action")
	}
	if changes == nil {
		changes = models.Changes{}
	}

	event := models.Event{
		ID:         id.NewEventID(),
		OrgID:      orgID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    changes,
		RequestID:  requestcontext.RequestID(ctx),
		ActorID:    requestcontext.ActorID(ctx),
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	}

	if err := r.store.Append(ctx, event); err != nil {
		if r.metrics != nil {
			r.metrics.IncrementPersistFailures()
		}
		r.logger.ErrorContext(ctx, "audit append failed",
			"request_id", event.RequestID,
			"org_id", orgID.String(),
			"entity_type", string(entityType),
			"entity_id", entityID,
			"action", string(action),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to record audit event")
	}

	if r.metrics != nil {
		r.metrics.ObservePersist(start)
		r.metrics.IncrementRecorded(string(entityType), string(action))
	}
	return &event, nil
}

// List returns one page of the org's events, newest first.
func (r *Recorder) List(ctx context.Context, orgID id.OrgID, filter models.Filter, page pagination.Request) (pagination.Page[models.Event], error) {
	if orgID.IsNil() {
		return pagination.Page[models.Event]{}, dErrors.New(dErrors.CodeValidation, "org id is required")
	}
	page = page.Normalize()
	events, total, err := r.store.List(ctx, orgID, filter, page)
	if err != nil {
		return pagination.Page[models.Event]{}, dErrors.Wrap(err, dErrors.CodePersistence, "failed to list audit events")
	}
	return pagination.NewPage(events, total, page), nil
}

// History returns every event of one entity in the order they were recorded.
func (r *Recorder) History(ctx context.Context, orgID id.OrgID, entityType models.EntityType, entityID string) ([]models.Event, error) {
	filter := models.Filter{EntityType: entityType, EntityID: entityID}
	var all []models.Event
	for page := (pagination.Request{Size: pagination.MaxSize}); ; page.Number++ {
		events, total, err := r.store.List(ctx, orgID, filter, page)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load entity history")
		}
		all = append(all, events...)
		if int64(len(all)) >= total || len(events) == 0 {
			break
		}
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}
