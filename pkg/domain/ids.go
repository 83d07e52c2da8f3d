// Package domain holds typed identifiers shared across bounded contexts.
// Parsing happens once at the trust boundary; everything downstream works with
// the typed value so an org id can never be passed where a dossier id is
// expected.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "crm/pkg/domain-errors"
)

// OrgID identifies a tenant organization (e.g. "ORG-001").
type OrgID string

// DossierID identifies a dossier within its tenant.
type DossierID uuid.UUID

// EventID identifies an audit event.
type EventID uuid.UUID

const maxOrgIDLength = 64

var orgIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseOrgID validates a tenant identifier resolved by the tenant middleware.
func ParseOrgID(s string) (OrgID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "org id is required")
	}
	if len(s) > maxOrgIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "org id is too long")
	}
	if !orgIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "org id contains invalid characters")
	}
	return OrgID(s), nil
}

func (o OrgID) String() string { return string(o) }

func (o OrgID) IsNil() bool { return o == "" }

// NewDossierID returns a fresh random dossier id.
func NewDossierID() DossierID { return DossierID(uuid.New()) }

// ParseDossierID parses a dossier id from its canonical string form.
func ParseDossierID(s string) (DossierID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DossierID{}, err
	}
	return DossierID(u), nil
}

func (d DossierID) String() string { return uuid.UUID(d).String() }

func (d DossierID) IsNil() bool { return uuid.UUID(d) == uuid.Nil }

func (d DossierID) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DossierID) UnmarshalText(b []byte) error {
	parsed, err := ParseDossierID(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewEventID returns a fresh random event id.
func NewEventID() EventID { return EventID(uuid.New()) }

// ParseEventID parses an audit event id.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return EventID{}, err
	}
	return EventID(u), nil
}

func (e EventID) String() string { return uuid.UUID(e).String() }

func (e EventID) IsNil() bool { return uuid.UUID(e) == uuid.Nil }

func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func parseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be nil")
	}
	return u, nil
}
