package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckerWildcards(t *testing.T) {
	c := NewChecker(nil)
	require.True(t, c.Has(RoleSuperAdmin, "anything:at-all"))
	require.True(t, c.Has(RoleAdmin, "results:publish"))
	require.True(t, c.Has(RoleAdmin, "exam:create"))
	require.False(t, c.Has(RoleAdmin, "attempt:submit"))
	require.False(t, c.Has(RoleUser, "answer:evaluate"))
	require.False(t, c.Has(RoleCoordinator, "results:publish"))
	require.False(t, c.Has("ghost", "exam:view"))
	require.True(t, c.Any(RoleConvener, "results:publish", "results:view"))
	require.False(t, c.All(RoleConvener, "results:publish", "results:view"))
}

func TestAuthorize(t *testing.T) {
	require.NoError(t, Authorize(Identity{Subject: "u1", Role: RoleAdmin}, "answer:evaluate"))
	require.ErrorIs(t, Authorize(Identity{Subject: "u1", Role: RoleUser}, "answer:evaluate"), ErrForbidden)
	require.ErrorIs(t, Authorize(Identity{Role: RoleSuperAdmin}, "answer:evaluate"), ErrForbidden, "subject is required")
}

func TestRequireMiddleware(t *testing.T) {
	h := Require("results:publish")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{
		RoleAdmin:       http.StatusNoContent,
		RoleSuperAdmin:  http.StatusNoContent,
		RoleUser:        http.StatusForbidden,
		RoleCoordinator: http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		ctx := WithRole(WithSubject(context.Background(), "someone"), role)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req.WithContext(ctx))
		require.Equal(t, want, rec.Code, role)
	}
}
