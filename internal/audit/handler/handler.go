package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crm/internal/audit/models"
	id "crm/pkg/domain"
	"crm/pkg/platform/httputil"
	"crm/pkg/platform/pagination"
	"crm/pkg/requestcontext"
)

// Lister reads the organization's audit trail.
type Lister interface {
	List(ctx context.Context, orgID id.OrgID, filter models.Filter, page pagination.Request) (pagination.Page[models.Event], error)
}

type Handler struct {
	audit  Lister
	logger *slog.Logger
}

func New(audit Lister, logger *slog.Logger) *Handler {
	return &Handler{audit: audit, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit-events", h.HandleList)
}

// HandleList handles GET /audit-events. Only events of the caller's
// organization are ever returned; the filters narrow further.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := pagination.FromQuery(q)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	filter := models.Filter{EntityID: q.Get("entityId")}
	if raw := q.Get("entityType"); raw != "" {
		if filter.EntityType, err = models.ParseEntityType(raw); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}
	if raw := q.Get("action"); raw != "" {
		if filter.Action, err = models.ParseAction(raw); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}

	result, err := h.audit.List(r.Context(), requestcontext.OrgID(r.Context()), filter, page)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit events failed",
			append(httputil.LogAttrs(r), "error", err)...)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
