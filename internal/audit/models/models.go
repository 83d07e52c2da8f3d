package models

import (
	"strings"
	"time"

	id "crm/pkg/domain"
	dErrors "crm/pkg/domain-errors"
)

// EntityType names the kind of record an event describes.
type EntityType string

const (
	EntityDossier        EntityType = "DOSSIER"
	EntityMessage        EntityType = "MESSAGE"
	EntityAppointment    EntityType = "APPOINTMENT"
	EntityPartiePrenante EntityType = "PARTIE_PRENANTE"
	EntityConsentement   EntityType = "CONSENTEMENT"
)

func (e EntityType) IsValid() bool {
	switch e {
	case EntityDossier, EntityMessage, EntityAppointment, EntityPartiePrenante, EntityConsentement:
		return true
	}
	return false
}

// ParseEntityType accepts the upper-case wire form, case-insensitively.
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown entity type: "+s)
	}
	return e, nil
}

// Action is the kind of mutation recorded.
type Action string

const (
	ActionCreated Action = "CREATED"
	ActionUpdated Action = "UPDATED"
	ActionDeleted Action = "DELETED"
)

func (a Action) IsValid() bool {
	return a == ActionCreated || a == ActionUpdated || a == ActionDeleted
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown action: "+s)
	}
	return a, nil
}

// FieldChange is one entry of a structured diff. A nil From marks a field
// that did not exist before; a nil To marks one that no longer exists.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Changes maps field names to their old and new values.
type Changes map[string]FieldChange

// Set records a change only when the values differ.
func (c Changes) Set(field string, from, to any) {
	if from == to {
		return
	}
	c[field] = FieldChange{From: from, To: to}
}

// Event is an immutable audit record.
type Event struct {
	ID         id.EventID `json:"id"`
	OrgID      id.OrgID   `json:"orgId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Action     Action     `json:"action"`
	Changes    Changes    `json:"changes"`
	RequestID  string     `json:"requestId,omitempty"`
	ActorID    string     `json:"actorId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Filter narrows an audit listing; zero fields do not filter.
type Filter struct {
	EntityType EntityType
	EntityID   string
	Action     Action
}

// Matches reports whether e passes every set filter field.
func (f Filter) Matches(e Event) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}
