package models

import (
	"time"

	auditmodels "crm/internal/audit/models"
)

// StatusChange is one step of a dossier's status history. From is nil for
// the creation step.
type StatusChange struct {
	From      *Status   `json:"from"`
	To        Status    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
	RequestID string    `json:"requestId,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
}

// StatusHistoryFrom rebuilds the status history from a dossier's audit
// events, given in the order they were recorded. Events without a status
// change are skipped, and so is the deletion event.
func StatusHistoryFrom(events []auditmodels.Event) []StatusChange {
	history := []StatusChange{}
	for _, e := range events {
		if e.Action == auditmodels.ActionDeleted {
			continue
		}
		change, ok := e.Changes["status"]
		if !ok {
			continue
		}
		to, ok := change.To.(string)
		if !ok {
			continue
		}
		step := StatusChange{
			To:        Status(to),
			At:        e.CreatedAt,
			RequestID: e.RequestID,
			ActorID:   e.ActorID,
		}
		if from, ok := change.From.(string); ok {
			s := Status(from)
			step.From = &s
		}
		if reason, ok := e.Changes["reason"].To.(string); ok {
			step.Reason = reason
		}
		history = append(history, step)
	}
	return history
}
