package testutil

import (
	"net/http"

	id "crm/pkg/domain"
	"crm/pkg/requestcontext"
)

// WithOrg scopes the request to an organization, as the tenant resolver would.
func WithOrg(req *http.Request, orgID string) *http.Request {
	return req.WithContext(requestcontext.WithOrgID(req.Context(), id.OrgID(orgID)))
}
