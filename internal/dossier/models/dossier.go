package models

import (
	"fmt"
	"time"

	auditmodels "crm/internal/audit/models"
	id "crm/pkg/domain"
	dErrors "crm/pkg/domain-errors"
)

// Dossier is a sales pipeline record owned by exactly one organization.
type Dossier struct {
	ID         id.DossierID
	OrgID      id.OrgID
	LeadName   string
	LeadPhone  string
	LeadEmail  string
	Notes      string
	Status     Status
	LossReason string
	WonReason  string
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDossier builds a NEW dossier. The org id is fixed here and never changes.
func NewDossier(orgID id.OrgID, req CreateRequest, now time.Time) *Dossier {
	return &Dossier{
		ID:        id.NewDossierID(),
		OrgID:     orgID,
		LeadName:  req.LeadName,
		LeadPhone: req.LeadPhone,
		LeadEmail: req.LeadEmail,
		Notes:     req.Notes,
		Status:    StatusNew,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (d *Dossier) Clone() *Dossier {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// EventTime is the time to stamp on the next change: now, but never earlier
// than the last committed change. A request that arrived first can commit
// last; clamping keeps the dossier's events in createdAt order a valid path.
func (d *Dossier) EventTime(now time.Time) time.Time {
	if now.Before(d.UpdatedAt) {
		return d.UpdatedAt
	}
	return now
}

// ApplyTransition moves the dossier to req's target status.
func (d *Dossier) ApplyTransition(target Status, req TransitionRequest, now time.Time) (auditmodels.Changes, error) {
	if d.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("dossier is %s; no further transition is allowed", d.Status))
	}
	if !d.Status.CanTransitionTo(target) {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition from %s to %s", d.Status, target))
	}

	changes := auditmodels.Changes{
		"status": {From: string(d.Status), To: string(target)},
	}
	switch target {
	case StatusLost:
		changes.Set("lossReason", nullable(d.LossReason), nullable(req.LossReason))
		d.LossReason = req.LossReason
	case StatusWon:
		changes.Set("wonReason", nullable(d.WonReason), nullable(req.WonReason))
		d.WonReason = req.WonReason
	}
	if req.Reason != "" {
		changes["reason"] = auditmodels.FieldChange{From: nil, To: req.Reason}
	}

	d.Status = target
	d.UpdatedAt = now
	return changes, nil
}

// ApplyLeadPatch applies the set fields of p and returns only what changed.
// An empty result means the dossier was left untouched.
func (d *Dossier) ApplyLeadPatch(p PatchLeadRequest, now time.Time) auditmodels.Changes {
	changes := auditmodels.Changes{}
	apply := func(field string, dst *string, v *string) {
		if v == nil || *v == *dst {
			return
		}
		changes.Set(field, nullable(*dst), nullable(*v))
		*dst = *v
	}
	apply("leadName", &d.LeadName, p.LeadName)
	apply("leadPhone", &d.LeadPhone, p.LeadPhone)
	apply("leadEmail", &d.LeadEmail, p.LeadEmail)
	apply("notes", &d.Notes, p.Notes)

	if len(changes) > 0 {
		d.UpdatedAt = now
	}
	return changes
}

// CreationChanges lists every initial field as {from: null, to: value}.
func (d *Dossier) CreationChanges() auditmodels.Changes {
	changes := auditmodels.Changes{}
	for field, v := range d.fields() {
		if v != nil {
			changes[field] = auditmodels.FieldChange{From: nil, To: v}
		}
	}
	return changes
}

// DeletionChanges lists the last known values as {from: value, to: null}.
func (d *Dossier) DeletionChanges() auditmodels.Changes {
	changes := auditmodels.Changes{}
	for field, v := range d.fields() {
		if v != nil {
			changes[field] = auditmodels.FieldChange{From: v, To: nil}
		}
	}
	return changes
}

func (d *Dossier) fields() map[string]any {
	return map[string]any{
		"leadName":   nullable(d.LeadName),
		"leadPhone":  nullable(d.LeadPhone),
		"leadEmail":  nullable(d.LeadEmail),
		"notes":      nullable(d.Notes),
		"status":     string(d.Status),
		"lossReason": nullable(d.LossReason),
		"wonReason":  nullable(d.WonReason),
	}
}

// nullable maps the empty string to nil so diffs render JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
