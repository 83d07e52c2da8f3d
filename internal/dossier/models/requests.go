package models

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	dErrors "crm/pkg/domain-errors"
)

const (
	maxNameLength   = 255
	maxEmailLength  = 255
	maxNotesLength  = 10000
	maxReasonLength = 1000
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 .\-]{6,20}$`)

// CreateRequest is the body of POST /dossiers.
type CreateRequest struct {
	LeadName  string `json:"leadName"`
	LeadPhone string `json:"leadPhone"`
	LeadEmail string `json:"leadEmail"`
	Notes     string `json:"notes"`
}

func (r *CreateRequest) Normalize() {
	r.LeadName = strings.TrimSpace(r.LeadName)
	r.LeadPhone = strings.TrimSpace(r.LeadPhone)
	r.LeadEmail = strings.ToLower(strings.TrimSpace(r.LeadEmail))
	r.Notes = strings.TrimSpace(r.Notes)
}

// Validate checks the raw input, then canonicalizes the phone.
func (r *CreateRequest) Validate() error {
	if err := validateLeadName(r.LeadName); err != nil {
		return err
	}
	phone, err := validatePhone(r.LeadPhone)
	if err != nil {
		return err
	}
	r.LeadPhone = phone
	if err := validateEmail(r.LeadEmail); err != nil {
		return err
	}
	return validateNotes(r.Notes)
}

// PatchLeadRequest is the body of PATCH /dossiers/{id}/lead. Nil fields are
// left untouched; an empty string clears an optional field.
type PatchLeadRequest struct {
	LeadName  *string `json:"leadName"`
	LeadPhone *string `json:"leadPhone"`
	LeadEmail *string `json:"leadEmail"`
	Notes     *string `json:"notes"`
}

func (r *PatchLeadRequest) Normalize() {
	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	trim(r.LeadName)
	trim(r.LeadPhone)
	trim(r.LeadEmail)
	trim(r.Notes)
	if r.LeadEmail != nil {
		*r.LeadEmail = strings.ToLower(*r.LeadEmail)
	}
}

func (r *PatchLeadRequest) Validate() error {
	if r.LeadName != nil {
		if err := validateLeadName(*r.LeadName); err != nil {
			return err
		}
	}
	if r.LeadPhone != nil {
		phone, err := validatePhone(*r.LeadPhone)
		if err != nil {
			return err
		}
		*r.LeadPhone = phone
	}
	if r.LeadEmail != nil {
		if err := validateEmail(*r.LeadEmail); err != nil {
			return err
		}
	}
	if r.Notes != nil {
		return validateNotes(*r.Notes)
	}
	return nil
}

// TransitionRequest is the body of PATCH /dossiers/{id}/status.
type TransitionRequest struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	LossReason string `json:"lossReason,omitempty"`
	WonReason  string `json:"wonReason,omitempty"`
}

func (r *TransitionRequest) Normalize() {
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	r.Reason = strings.TrimSpace(r.Reason)
	r.LossReason = strings.TrimSpace(r.LossReason)
	r.WonReason = strings.TrimSpace(r.WonReason)
}

// Validate checks the shape of the request. Whether the move is allowed from
// the dossier's current status is decided by the transition engine.
func (r *TransitionRequest) Validate() error {
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	target, err := ParseStatus(r.Status)
	if err != nil {
		return err
	}
	if r.LossReason != "" && target != StatusLost {
		return dErrors.New(dErrors.CodeValidation, "lossReason is only accepted when moving to LOST")
	}
	if r.WonReason != "" && target != StatusWon {
		return dErrors.New(dErrors.CodeValidation, "wonReason is only accepted when moving to WON")
	}
	for _, s := range []string{r.Reason, r.LossReason, r.WonReason} {
		if utf8.RuneCountInString(s) > maxReasonLength {
			return dErrors.New(dErrors.CodeValidation, "reason must be at most 1000 characters")
		}
	}
	return nil
}

// ListFilter narrows GET /dossiers.
type ListFilter struct {
	Status    Status
	LeadPhone string
}

func validateLeadName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "leadName is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "leadName must be at most 255 characters")
	}
	return nil
}

func validatePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	if !phonePattern.MatchString(phone) {
		return "", dErrors.New(dErrors.CodeValidation, "leadPhone is not a valid phone number")
	}
	canonical := CanonicalPhone(phone)
	if len(strings.TrimPrefix(canonical, "+")) < 6 {
		return "", dErrors.New(dErrors.CodeValidation, "leadPhone is not a valid phone number")
	}
	return canonical, nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if len(email) > maxEmailLength {
		return dErrors.New(dErrors.CodeValidation, "leadEmail must be at most 255 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return dErrors.New(dErrors.CodeValidation, "leadEmail is not a valid email address")
	}
	return nil
}

func validateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 10000 characters")
	}
	return nil
}

// CanonicalPhone strips separators so "+33 6 12.34-56-78" and
// "+33612345678" compare equal for duplicate detection.
func CanonicalPhone(phone string) string {
	var b strings.Builder
	for i, c := range strings.TrimSpace(phone) {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '+' && i == 0:
			b.WriteRune(c)
		}
	}
	return b.String()
}
