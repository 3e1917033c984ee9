package invites

import (
	"encoding/json"
	"net/http"

	"github.com/openharvest/outreach-platform/internal/http/middleware"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// Handler exposes invitation operations. Routing guards both endpoints
// with an admin role requirement.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an invitations handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Create handles POST /api/invitations.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	invitedBy := ""
	if claims, ok := middleware.SessionFromContext(r.Context()); ok {
		invitedBy = claims.Name
	}

	inv, err := h.service.Create(r.Context(), req, invitedBy)
	if err != nil {
		h.logger.Error("failed to create invitation", "error", err)
		status := http.StatusInternalServerError
		if req.Validate() != nil {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

// List handles GET /api/invitations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list invitations", "error", err)
		http.Error(w, "failed to list invitations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invitations": list,
		"count":       len(list),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
