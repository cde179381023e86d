package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/qhlc/qhlc-exams/internal/rbac"
)

type RoleLookup interface {
	Role(ctx context.Context, sub string) (string, error)
}

// AttachRoleFromDB replaces the token's role with the stored one, so a role
// change takes effect before the token expires. Tokens for subjects that are
// not in the users table keep their claim role only when allowClaimFallback
// is set.
func AttachRoleFromDB(users RoleLookup, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := rbac.SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			role, err := users.Role(ctx, sub)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case (err == nil || errors.Is(err, sql.ErrNoRows)) && allowClaimFallback && claimRole != "":
				next.ServeHTTP(w, r)
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
