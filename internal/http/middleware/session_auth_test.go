package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/outreach-platform/internal/identity"
	"github.com/openharvest/outreach-platform/internal/session"
)

func issueToken(t *testing.T, issuer *identity.TokenIssuer, role identity.Role) (string, string) {
	t.Helper()
	token, tokenID, err := issuer.Issue(&identity.User{ID: "u1", Name: "Ana", Role: role})
	require.NoError(t, err)
	return token, tokenID
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionAuthAcceptsValidToken(t *testing.T) {
	issuer := identity.NewTokenIssuer("secret", time.Hour)
	token, _ := issueToken(t, issuer, identity.RoleTeamMember)

	var claims *identity.SessionClaims
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/prospects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	SessionAuth(issuer, nil)(handler).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, identity.RoleTeamMember, claims.Role)
}

func TestSessionAuthRejectsMissingOrBadToken(t *testing.T) {
	issuer := identity.NewTokenIssuer("secret", time.Hour)
	called := false
	mw := SessionAuth(issuer, nil)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/prospects", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/prospects", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestSessionAuthRejectsRevokedToken(t *testing.T) {
	issuer := identity.NewTokenIssuer("secret", time.Hour)
	mr := miniredis.RunT(t)
	revoker := session.NewRedisRevokerFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	token, tokenID := issueToken(t, issuer, identity.RoleAdmin)
	require.NoError(t, revoker.Revoke(context.Background(), tokenID, time.Hour))

	called := false
	req := httptest.NewRequest(http.MethodGet, "/api/prospects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	SessionAuth(issuer, revoker)(okHandler(&called)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestRequireRole(t *testing.T) {
	issuer := identity.NewTokenIssuer("secret", time.Hour)

	run := func(role identity.Role, mw func(http.Handler) http.Handler) int {
		token, _ := issueToken(t, issuer, role)
		called := false
		req := httptest.NewRequest(http.MethodPut, "/api/prospects/p1/assignment", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		SessionAuth(issuer, nil)(mw(okHandler(&called))).ServeHTTP(rec, req)
		return rec.Code
	}

	adminOnly := RequireRole(identity.RoleSuperAdmin, identity.RoleAdmin)
	assert.Equal(t, http.StatusOK, run(identity.RoleSuperAdmin, adminOnly))
	assert.Equal(t, http.StatusOK, run(identity.RoleAdmin, adminOnly))
	assert.Equal(t, http.StatusForbidden, run(identity.RoleTeamMember, adminOnly))
}

func TestRequireRoleWithoutSession(t *testing.T) {
	called := false
	mw := RequireRole(identity.RoleAdmin)(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/api/team", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}
