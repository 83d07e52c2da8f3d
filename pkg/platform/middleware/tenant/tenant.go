// Package tenant resolves the caller's organization before any handler runs.
//
// When a token validator is configured the org id comes only from a verified
// bearer token; otherwise it is read from the X-Org-Id header set by the
// trusted gateway. Org ids supplied in bodies or query strings are never
// consulted.
package tenant

import (
	"log/slog"
	"net/http"
	"strings"

	jwttoken "crm/internal/jwt_token"
	dErrors "crm/pkg/domain-errors"
	id "crm/pkg/domain"
	"crm/pkg/platform/httputil"
	"crm/pkg/requestcontext"
)

const HeaderOrgID = "X-Org-Id"

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

type Resolver struct {
	validator TokenValidator
	logger    *slog.Logger
}

type Option func(*Resolver)

// WithTokenValidator switches resolution from the gateway header to verified tokens.
func WithTokenValidator(v TokenValidator) Option {
	return func(r *Resolver) {
		r.validator = v
	}
}

func New(logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Middleware stores the resolved OrgID (and actor, when known) in the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var raw, actor string
		if res.validator != nil {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "Missing bearer token"))
				return
			}
			claims, err := res.validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				res.logger.WarnContext(ctx, "tenant token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, r, err)
				return
			}
			raw, actor = claims.OrgID, claims.Subject
		} else {
			raw = r.Header.Get(HeaderOrgID)
			if strings.TrimSpace(raw) == "" {
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeBadRequest, "Missing required header: "+HeaderOrgID))
				return
			}
		}

		orgID, err := id.ParseOrgID(raw)
		if err != nil {
			httputil.WriteError(w, r, dErrors.Wrap(err, dErrors.CodeBadRequest, "Invalid organization identifier"))
			return
		}

		w.Header().Set(HeaderOrgID, orgID.String())
		ctx = requestcontext.WithOrgID(ctx, orgID)
		if actor != "" {
			ctx = requestcontext.WithActorID(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
