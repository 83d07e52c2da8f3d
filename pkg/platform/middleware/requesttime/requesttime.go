// Package requesttime pins one timestamp per request so that a dossier's
// updatedAt and the createdAt of its audit event agree.
package requesttime

import (
	"net/http"
	"time"

	"crm/pkg/requestcontext"
)

// Middleware stamps requests with the wall clock.
var Middleware = New(time.Now)

// New stamps each request with now(), in UTC and truncated to the microsecond
// precision PostgreSQL stores.
func New(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC().Truncate(time.Microsecond))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
