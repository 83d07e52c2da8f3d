package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crm/internal/dossier/models"
	"crm/internal/dossier/service"
	id "crm/pkg/domain"
	dErrors "crm/pkg/domain-errors"
	"crm/pkg/platform/httputil"
	"crm/pkg/platform/pagination"
	"crm/pkg/requestcontext"
)

// Service defines the dossier operations the HTTP layer needs.
type Service interface {
	Get(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) (*models.Dossier, error)
	Create(ctx context.Context, orgID id.OrgID, req models.CreateRequest) (*service.CreateResult, error)
	UpdateLead(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, patch models.PatchLeadRequest) (*models.Dossier, error)
	Transition(ctx context.Context, orgID id.OrgID, dossierID id.DossierID, req models.TransitionRequest) (*models.Dossier, error)
	Delete(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) error
	List(ctx context.Context, orgID id.OrgID, filter models.ListFilter, page pagination.Request) (pagination.Page[*models.Dossier], error)
	CheckDuplicates(ctx context.Context, orgID id.OrgID, phone string) ([]id.DossierID, error)
	StatusHistory(ctx context.Context, orgID id.OrgID, dossierID id.DossierID) ([]models.StatusChange, error)
}

// Handler wires dossier endpoints to the dossier service. The organization
// always comes from the request context, never from the body or query.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts dossier endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/dossiers", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/check-duplicates", h.HandleCheckDuplicates)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Patch("/lead", h.HandleUpdateLead)
			r.Patch("/status", h.HandleTransition)
			r.Get("/status-history", h.HandleStatusHistory)
			r.Delete("/", h.HandleDelete)
		})
	})
}

// HandleCreate handles POST /dossiers.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeAndPrepare[models.CreateRequest](r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	res, err := h.service.Create(r.Context(), requestcontext.OrgID(r.Context()), *req)
	if err != nil {
		h.fail(w, r, "create dossier failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CreateResponse{
		Dossier:    FromDossier(res.Dossier),
		Duplicates: idStrings(res.Duplicates),
	})
}

// HandleList handles GET /dossiers.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := pagination.FromQuery(q)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	filter := models.ListFilter{LeadPhone: q.Get("leadPhone")}
	if raw := q.Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		filter.Status = status
	}

	result, err := h.service.List(r.Context(), requestcontext.OrgID(r.Context()), filter, page)
	if err != nil {
		h.fail(w, r, "list dossiers failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.Map(result, FromDossier))
}

// HandleCheckDuplicates handles GET /dossiers/check-duplicates.
func (h *Handler) HandleCheckDuplicates(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("leadPhone")
	if phone == "" {
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeBadRequest, "leadPhone query parameter is required"))
		return
	}
	ids, err := h.service.CheckDuplicates(r.Context(), requestcontext.OrgID(r.Context()), phone)
	if err != nil {
		h.fail(w, r, "check duplicates failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DuplicatesResponse{Duplicates: idStrings(ids)})
}

// HandleGet handles GET /dossiers/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), requestcontext.OrgID(r.Context()), dossierID)
	if err != nil {
		h.fail(w, r, "get dossier failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDossier(d))
}

// HandleUpdateLead handles PATCH /dossiers/{id}/lead.
func (h *Handler) HandleUpdateLead(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeAndPrepare[models.PatchLeadRequest](r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	d, err := h.service.UpdateLead(r.Context(), requestcontext.OrgID(r.Context()), dossierID, *req)
	if err != nil {
		h.fail(w, r, "update lead failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDossier(d))
}

// HandleTransition handles PATCH /dossiers/{id}/status.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	req, err := httputil.DecodeAndPrepare[models.TransitionRequest](r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	d, err := h.service.Transition(r.Context(), requestcontext.OrgID(r.Context()), dossierID, *req)
	if err != nil {
		h.fail(w, r, "status transition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDossier(d))
}

// HandleStatusHistory handles GET /dossiers/{id}/status-history.
func (h *Handler) HandleStatusHistory(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	history, err := h.service.StatusHistory(r.Context(), requestcontext.OrgID(r.Context()), dossierID)
	if err != nil {
		h.fail(w, r, "status history failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

// HandleDelete handles DELETE /dossiers/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	dossierID, ok := h.dossierID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), requestcontext.OrgID(r.Context()), dossierID); err != nil {
		h.fail(w, r, "delete dossier failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// dossierID parses the path id. A malformed id answers exactly like an
// unknown one.
func (h *Handler) dossierID(w http.ResponseWriter, r *http.Request) (id.DossierID, bool) {
	dossierID, err := id.ParseDossierID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeNotFound, "dossier not found"))
		return id.DossierID{}, false
	}
	return dossierID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	attrs := append(httputil.LogAttrs(r), "code", string(dErrors.CodeOf(err)), "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, attrs...)
	} else {
		h.logger.InfoContext(r.Context(), msg, attrs...)
	}
	httputil.WriteError(w, r, err)
}
