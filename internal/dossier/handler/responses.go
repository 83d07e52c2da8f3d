package handler

import (
	"time"

	"crm/internal/dossier/models"
	id "crm/pkg/domain"
)

// DossierResponse is the dossier representation, with the read projections
// the pipeline view renders.
type DossierResponse struct {
	ID                 string    `json:"id"`
	OrgID              string    `json:"orgId"`
	LeadName           string    `json:"leadName"`
	LeadPhone          string    `json:"leadPhone,omitempty"`
	LeadEmail          string    `json:"leadEmail,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	Status             string    `json:"status"`
	LossReason         string    `json:"lossReason,omitempty"`
	WonReason          string    `json:"wonReason,omitempty"`
	Version            int64     `json:"version"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	Progress           int       `json:"progress"`
	Label              string    `json:"label"`
	Hint               string    `json:"hint"`
	AllowedTransitions []string  `json:"allowedTransitions"`
	Terminal           bool      `json:"terminal"`
}

// CreateResponse is the body of POST /dossiers. Duplicates lists open
// dossiers of the same organization that share the lead's phone.
type CreateResponse struct {
	Dossier    DossierResponse `json:"dossier"`
	Duplicates []string        `json:"duplicates"`
}

type DuplicatesResponse struct {
	Duplicates []string `json:"duplicates"`
}

func FromDossier(d *models.Dossier) DossierResponse {
	allowed := d.Status.AllowedTargets()
	targets := make([]string, 0, len(allowed))
	for _, s := range allowed {
		targets = append(targets, string(s))
	}
	return DossierResponse{
		ID:                 d.ID.String(),
		OrgID:              d.OrgID.String(),
		LeadName:           d.LeadName,
		LeadPhone:          d.LeadPhone,
		LeadEmail:          d.LeadEmail,
		Notes:              d.Notes,
		Status:             string(d.Status),
		LossReason:         d.LossReason,
		WonReason:          d.WonReason,
		Version:            d.Version,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		Progress:           d.Status.Progress(),
		Label:              d.Status.Label(),
		Hint:               d.Status.Hint(),
		AllowedTransitions: targets,
		Terminal:           d.Status.IsTerminal(),
	}
}

func idStrings(ids []id.DossierID) []string {
	out := make([]string, 0, len(ids))
	for _, i := range ids {
		out = append(out, i.String())
	}
	return out
}
