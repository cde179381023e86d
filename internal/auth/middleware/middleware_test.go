package auth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qhlc/qhlc-exams/internal/rbac"
)

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rbac.IdentityFromContext(r.Context())
		_, _ = w.Write([]byte(id.Subject + "|" + id.Role))
	})
}

func TestJWTMiddlewareSetsIdentity(t *testing.T) {
	a := NewAuthService("k", time.Hour)
	tok, err := a.IssueJWT("u1", rbac.RoleAdmin)
	require.NoError(t, err)

	h := JWTMiddleware(a)(echoIdentity())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "u1|admin", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	a := NewAuthService("k", time.Minute)
	other := NewAuthService("other", time.Minute)
	tok, err := other.IssueJWT("u1", rbac.RoleUser)
	require.NoError(t, err)
	_, err = a.Parse(tok)
	require.Error(t, err)

	tok, err = a.IssueJWT("u1", rbac.RoleUser)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = a.Parse(tok)
	require.Error(t, err)
}

type roles map[string]string

func (m roles) Role(_ context.Context, sub string) (string, error) {
	r, ok := m[sub]
	if !ok {
		return "", sql.ErrNoRows
	}
	return r, nil
}

func TestAttachRoleFromDB(t *testing.T) {
	store := roles{"u1": rbac.RoleCoordinator}
	run := func(sub, claim string, fallback bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := rbac.WithRole(rbac.WithSubject(req.Context(), sub), claim)
		rr := httptest.NewRecorder()
		AttachRoleFromDB(store, fallback)(echoIdentity()).ServeHTTP(rr, req.WithContext(ctx))
		return rr
	}

	rr := run("u1", rbac.RoleAdmin, false)
	require.Equal(t, "u1|coordinator", rr.Body.String(), "stored role wins over the claim")

	rr = run("ghost", rbac.RoleUser, false)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = run("ghost", rbac.RoleUser, true)
	require.Equal(t, "ghost|user", rr.Body.String())
}
