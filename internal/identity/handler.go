package identity

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openharvest/outreach-platform/pkg/logging"
)

// Handler exposes authentication and team management over HTTP. The
// session claims it reads from the request context are placed there by
// the auth middleware; admin routes are additionally role-guarded at
// the router.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an identity handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// ClaimsFromContext resolves the acting user's claims. Wired to the
// middleware accessor at router construction to avoid an import cycle.
type ClaimsFromContext func(r *http.Request) (*SessionClaims, bool)

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error("login failed", "error", err)
		http.Error(w, "sign-in unavailable", http.StatusServiceUnavailable)
		return
	}

	status := http.StatusOK
	if sess.State == StateDenied {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, loginResponse(sess))
}

func loginResponse(sess *Session) map[string]any {
	resp := map[string]any{"state": string(sess.State)}
	if sess.State == StateDenied {
		resp["denial"] = string(sess.Denial)
		resp["message"] = sess.Denial.Message()
		return resp
	}
	resp["user"] = sess.User
	resp["token"] = sess.Token
	resp["expiresAt"] = sess.ExpiresAt
	resp["showTour"] = sess.ShowTour
	return resp
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if errors.Is(err, ErrEmailTaken) {
		http.Error(w, "email already registered", http.StatusConflict)
		return
	}
	if err != nil {
		if req.Validate() != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("registration failed", "error", err)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(claims ClaimsFromContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := claims(r)
		if err := h.service.Logout(r.Context(), c); err != nil {
			h.logger.Error("logout failed", "error", err)
			http.Error(w, "logout failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RequestPasswordReset handles POST /api/auth/reset. The response is
// identical whether or not the email exists.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := h.service.IssuePasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Info("password reset issue failed", "error", err)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "If that email is registered, a reset link is on its way.",
	})
}

// ConfirmPasswordReset handles POST /api/auth/reset/confirm with
// mode=resetPassword and the opaque oobCode from the reset link.
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode        string `json:"mode"`
		OOBCode     string `json:"oobCode"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.ConfirmPasswordReset(r.Context(), req.Mode, req.OOBCode, req.NewPassword)
	if errors.Is(err, ErrResetCodeInvalid) {
		http.Error(w, "reset code invalid or expired", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(claims ClaimsFromContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := claims(r)
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		user, err := h.service.GetUser(r.Context(), c.Subject)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// MarkTourSeen handles POST /api/auth/tour.
func (h *Handler) MarkTourSeen(claims ClaimsFromContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := claims(r)
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if err := h.service.MarkTourSeen(r.Context(), c.Subject); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// UpdateProfile handles PUT /api/users/{id}/profile.
func (h *Handler) UpdateProfile(claims ClaimsFromContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update ProfileUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		actor, err := h.actingUser(r, claims)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.service.UpdateProfile(r.Context(), actor, chi.URLParam(r, "id"), update); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		http.Error(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// SetApproval handles PUT /api/users/{id}/approval.
func (h *Handler) SetApproval(claims ClaimsFromContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status ApprovalStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		actor, err := h.actingUser(r, claims)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.service.SetApproval(r.Context(), actor, chi.URLParam(r, "id"), req.Status); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetRole handles PUT /api/users/{id}/role.
func (h *Handler) SetRole(claims ClaimsFromContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role Role `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		actor, err := h.actingUser(r, claims)
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.service.SetRole(r.Context(), actor, chi.URLParam(r, "id"), req.Role); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// actingUser loads the full profile for the authenticated caller. Role
// checks read the stored profile, not the token, so a demotion takes
// effect before the old token expires.
func (h *Handler) actingUser(r *http.Request, claims ClaimsFromContext) (*User, error) {
	c, ok := claims(r)
	if !ok {
		return nil, ErrForbidden
	}
	return h.service.GetUser(r.Context(), c.Subject)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "operation not permitted", http.StatusForbidden)
	default:
		h.logger.Error("identity operation failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
