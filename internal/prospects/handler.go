package prospects

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openharvest/outreach-platform/internal/http/middleware"
	"github.com/openharvest/outreach-platform/internal/observability/metrics"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// Handler exposes prospect operations over HTTP.
type Handler struct {
	service *Service
	metrics *metrics.OutreachMetrics
	logger  *logging.Logger
}

// NewHandler creates a prospects handler. metrics may be nil.
func NewHandler(service *Service, m *metrics.OutreachMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, metrics: m, logger: logger}
}

// CreateResponse wraps a created prospect with the analysis outcome.
type CreateResponse struct {
	Prospect *Prospect `json:"prospect"`
	// AnalysisDegraded warns the volunteer that the AI assessment
	// fell back to the default; the record itself saved fine.
	AnalysisDegraded bool `json:"analysisDegraded,omitempty"`
}

// Create handles POST /api/prospects.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, _ := middleware.SessionFromContext(r.Context())
	recordedBy := ""
	if claims != nil {
		recordedBy = claims.Name
	}

	p, degraded, err := h.service.Create(r.Context(), req, recordedBy)
	if err != nil {
		h.logger.Error("failed to create prospect", "error", err)
		status := http.StatusInternalServerError
		if req.Validate() != nil {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	h.metrics.ObserveProspectCreated(degraded)
	writeJSON(w, http.StatusCreated, CreateResponse{Prospect: p, AnalysisDegraded: degraded})
}

// List handles GET /api/prospects.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list prospects", "error", err)
		http.Error(w, "failed to list prospects", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prospects": list,
		"count":     len(list),
	})
}

// Get handles GET /api/prospects/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddFollowUp handles POST /api/prospects/{id}/followups.
func (h *Handler) AddFollowUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, _ := middleware.SessionFromContext(r.Context())
	recordedBy := ""
	if claims != nil {
		recordedBy = claims.Name
	}

	p, err := h.service.AddFollowUp(r.Context(), chi.URLParam(r, "id"), req.Notes, recordedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CycleStatus handles POST /api/prospects/{id}/status.
func (h *Handler) CycleStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.CycleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ToggleBaptism handles POST /api/prospects/{id}/baptism.
func (h *Handler) ToggleBaptism(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ToggleBaptism(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Assign handles PUT /api/prospects/{id}/assignment. Routing guards
// this with an admin role requirement.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.service.Assign(r.Context(), chi.URLParam(r, "id"), req.UserID, req.UserName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "prospect not found", http.StatusNotFound)
		return
	}
	h.logger.Error("prospect operation failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
