package models

import (
	"math"
	"time"

	id "crm/pkg/domain"
)

const orgKeyPrefix = "rate-limit:org:"

// OrgKey is the window key of one organization.
func OrgKey(orgID id.OrgID) string {
	return orgKeyPrefix + orgID.String()
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the check ran on the fallback store.
	Degraded bool
}

// RetryAfter is the whole number of seconds until the window resets, at
// least one.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// NewResult builds a result from the number of requests counted in the
// current window, including this one.
func NewResult(count, limit int, resetAt time.Time) *Result {
	remaining := max(limit-count, 0)
	return &Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
