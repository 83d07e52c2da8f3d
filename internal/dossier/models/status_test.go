package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crm/pkg/domain"
	dErrors "crm/pkg/domain-errors"
)

var allowed = map[Status]map[Status]bool{
	StatusNew:         {StatusQualifying: true, StatusLost: true},
	StatusQualifying:  {StatusQualified: true, StatusLost: true},
	StatusQualified:   {StatusAppointment: true, StatusLost: true},
	StatusAppointment: {StatusWon: true, StatusLost: true},
	StatusWon:         {},
	StatusLost:        {},
}

// Every (from, to) pair, self transitions included.
func TestTransitionClosure(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				d := &Dossier{ID: id.NewDossierID(), OrgID: "ORG-001", LeadName: "Ana", Status: from}

				changes, err := d.ApplyTransition(to, TransitionRequest{Status: string(to)}, now)

				if allowed[from][to] {
					require.NoError(t, err)
					assert.Equal(t, to, d.Status)
					assert.Equal(t, now, d.UpdatedAt)
					require.Contains(t, changes, "status")
					assert.Equal(t, string(from), changes["status"].From)
					assert.Equal(t, string(to), changes["status"].To)
				} else {
					require.Error(t, err)
					assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
					assert.Equal(t, from, d.Status, "rejected transition must not mutate")
					assert.True(t, d.UpdatedAt.IsZero())
				}
				assert.Equal(t, allowed[from][to], from.CanTransitionTo(to))
			})
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range AllStatuses {
		terminal := s == StatusWon || s == StatusLost
		assert.Equal(t, terminal, s.IsTerminal(), s)
		assert.Equal(t, terminal, len(s.AllowedTargets()) == 0, s)
	}
}

func TestAllowedTargetsIsACopy(t *testing.T) {
	targets := StatusNew.AllowedTargets()
	targets[0] = StatusWon
	assert.Equal(t, []Status{StatusQualifying, StatusLost}, StatusNew.AllowedTargets())
}

func TestProjections(t *testing.T) {
	want := map[Status]int{
		StatusNew: 0, StatusQualifying: 25, StatusQualified: 50,
		StatusAppointment: 75, StatusWon: 100, StatusLost: 100,
	}
	for s, p := range want {
		assert.Equal(t, p, s.Progress(), s)
		assert.NotEmpty(t, s.Hint(), s)
		assert.NotEmpty(t, s.Label(), s)
	}
	assert.Equal(t, "Rendez-vous", StatusAppointment.Label())
	assert.Equal(t, "Planifiez un rendez-vous et associez une annonce si besoin.", StatusQualified.Hint())

	// Two dossiers in the same status always render the same projection.
	a := &Dossier{Status: StatusQualified, LeadName: "A"}
	b := &Dossier{Status: StatusQualified, LeadName: "B"}
	assert.Equal(t, a.Status.Progress(), b.Status.Progress())
	assert.Equal(t, a.Status.Hint(), b.Status.Hint())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" qualifying ")
	require.NoError(t, err)
	assert.Equal(t, StatusQualifying, s)

	for _, bad := range []string{"", "CLOSED", "NEW!"} {
		_, err := ParseStatus(bad)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), bad)
	}
}
