package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/outreach-platform/internal/aireview"
	"github.com/openharvest/outreach-platform/internal/identity"
	"github.com/openharvest/outreach-platform/internal/invites"
	"github.com/openharvest/outreach-platform/internal/notify"
	"github.com/openharvest/outreach-platform/internal/prospects"
	"github.com/openharvest/outreach-platform/internal/session"
	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := logging.Default()

	backend, err := store.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	tokens := identity.NewTokenIssuer("router-test-secret", time.Hour)
	verifier := identity.NewLocalVerifier(backend, logger)
	identitySvc := identity.NewService(backend, verifier, tokens, session.NopRevoker{}, logger)

	reviews := aireview.NewService(nil, logger)
	prospectSvc := prospects.NewService(backend, reviews, logger)

	inviteSvc := invites.NewService(backend, notify.NewStubEmailSender(logger), "http://localhost:8080", logger)

	return New(&Config{
		Logger:          logger,
		Tokens:          tokens,
		Revoker:         session.NopRevoker{},
		IdentityHandler: identity.NewHandler(identitySvc, logger),
		ProspectHandler: prospects.NewHandler(prospectSvc, nil, logger),
		ProspectStream:  prospects.NewStreamHandler(prospectSvc, logger),
		UserStream:      identity.NewStreamHandler(identitySvc, logger),
		InviteHandler:   invites.NewHandler(inviteSvc, logger),
		BackendMode:     "local",
	})
}

func do(t *testing.T, h http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// registerAndLogin creates an account and signs it in, returning the
// session token. The first account registered is auto-approved.
func registerAndLogin(t *testing.T, h http.Handler, name, email string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": name, "email": email, "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": email, "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backend":"local"`)
}

func TestProspectsRequireAuth(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/prospects/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProspectLifecycleThroughRouter(t *testing.T) {
	h := newTestServer(t)
	token := registerAndLogin(t, h, "Founder", "founder@example.com")

	rec := do(t, h, http.MethodPost, "/api/prospects/", token, map[string]any{
		"name": "Lucas", "notes": "asked about baptism",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Prospect struct {
			ID string `json:"id"`
		} `json:"prospect"`
		AnalysisDegraded bool `json:"analysisDegraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Prospect.ID)
	// No analyzer configured in this server, so creation falls back.
	assert.True(t, created.AnalysisDegraded)

	rec = do(t, h, http.MethodPost, "/api/prospects/"+created.Prospect.ID+"/followups", token,
		map[string]any{"notes": "came to service"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/prospects/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestInvitationsRequireAdminRole(t *testing.T) {
	h := newTestServer(t)

	// First registration bootstraps the super admin; that account can
	// invite.
	adminToken := registerAndLogin(t, h, "Founder", "founder@example.com")
	rec := do(t, h, http.MethodPost, "/api/invitations/", adminToken, map[string]any{
		"email": "new@example.com",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Approve a second, ordinary member and verify they are rejected.
	rec = do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Member", "email": "member@example.com", "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var member struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))

	rec = do(t, h, http.MethodPut, "/api/users/"+member.ID+"/approval", adminToken,
		map[string]any{"status": "approved"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "member@example.com", "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = do(t, h, http.MethodPost, "/api/invitations/", login.Token, map[string]any{
		"email": "another@example.com",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoleChangeGuardedServerSide(t *testing.T) {
	h := newTestServer(t)
	adminToken := registerAndLogin(t, h, "Founder", "founder@example.com")

	rec := do(t, h, http.MethodPost, "/api/auth/register", "", map[string]any{
		"name": "Member", "email": "member@example.com", "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var member struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))

	rec = do(t, h, http.MethodPut, "/api/users/"+member.ID+"/role", adminToken,
		map[string]any{"role": "admin"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	h := newTestServer(t)
	token := registerAndLogin(t, h, "Founder", "founder@example.com")

	rec := do(t, h, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
