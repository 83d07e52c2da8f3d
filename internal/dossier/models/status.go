package models

import (
	"strings"

	dErrors "crm/pkg/domain-errors"
)

// Status is a dossier's position in the sales pipeline.
type Status string

const (
	StatusNew         Status = "NEW"
	StatusQualifying  Status = "QUALIFYING"
	StatusQualified   Status = "QUALIFIED"
	StatusAppointment Status = "APPOINTMENT"
	StatusWon         Status = "WON"
	StatusLost        Status = "LOST"
)

// AllStatuses lists every status in pipeline order.
var AllStatuses = []Status{
	StatusNew, StatusQualifying, StatusQualified, StatusAppointment, StatusWon, StatusLost,
}

// transitions is the only place allowed moves are defined.
var transitions = map[Status][]Status{
	StatusNew:         {StatusQualifying, StatusLost},
	StatusQualifying:  {StatusQualified, StatusLost},
	StatusQualified:   {StatusAppointment, StatusLost},
	StatusAppointment: {StatusWon, StatusLost},
	StatusWon:         nil,
	StatusLost:        nil,
}

type projection struct {
	progress int
	label    string
	hint     string
}

var projections = map[Status]projection{
	StatusNew:         {0, "Nouveau", "Complétez les informations du prospect et démarrez la qualification."},
	StatusQualifying:  {25, "En qualification", "Validez le besoin, le budget et les critères. Ajoutez une note de synthèse."},
	StatusQualified:   {50, "Qualifié", "Planifiez un rendez-vous et associez une annonce si besoin."},
	StatusAppointment: {75, "Rendez-vous", "Après le rendez-vous, consignez le compte-rendu et clôturez le dossier."},
	StatusWon:         {100, "Gagné", "Dossier gagné : préparez les documents et passez en phase contractualisation."},
	StatusLost:        {100, "Perdu", "Dossier perdu : indiquez la raison et gardez une trace pour l'analyse."},
}

// ParseStatus accepts a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown status: "+s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// AllowedTargets returns a copy of the statuses reachable from s.
func (s Status) AllowedTargets() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// CanTransitionTo reports whether target is directly reachable from s.
// A status never transitions to itself.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Progress is the pipeline completion percentage.
func (s Status) Progress() int { return projections[s].progress }

// Label is the display name shown to agents.
func (s Status) Label() string { return projections[s].label }

// Hint is the next-step guidance shown with the status.
func (s Status) Hint() string { return projections[s].hint }
