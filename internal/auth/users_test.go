package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/qhlc/qhlc-exams/internal/db"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

func newUsers(t *testing.T) *Users {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	u := NewUsers(dbh)
	u.cost = bcrypt.MinCost
	return u
}

func TestCreateAndAuthenticate(t *testing.T) {
	u := newUsers(t)
	ctx := context.Background()

	created, err := u.Create(ctx, " aisha ", "pw-1", "")
	require.NoError(t, err)
	require.Equal(t, "aisha", created.Username)
	require.Equal(t, rbac.RoleUser, created.Role)

	_, err = u.Create(ctx, "aisha", "other", rbac.RoleAdmin)
	require.ErrorIs(t, err, ErrUserExists)
	_, err = u.Create(ctx, "bilal", "pw", "examiner")
	require.ErrorIs(t, err, ErrInvalidRole)

	got, err := u.Authenticate(ctx, "aisha", "pw-1")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = u.Authenticate(ctx, "aisha", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = u.Authenticate(ctx, "nobody", "pw-1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	require.ErrorIs(t, u.ChangePassword(ctx, created.ID, "wrong", "pw-2"), ErrInvalidCredentials)
	require.NoError(t, u.ChangePassword(ctx, created.ID, "pw-1", "pw-2"))
	_, err = u.Authenticate(ctx, "aisha", "pw-2")
	require.NoError(t, err)

	role, err := u.Role(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, rbac.RoleUser, role)
}

func TestEnsureAdmin(t *testing.T) {
	u := newUsers(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("root"), bcrypt.MinCost)
	require.NoError(t, err)

	require.NoError(t, u.EnsureAdmin(ctx, "root", string(hash)))
	require.NoError(t, u.EnsureAdmin(ctx, "root", string(hash)))
	require.Error(t, u.EnsureAdmin(ctx, "root2", "not-a-hash"))
	require.NoError(t, u.EnsureAdmin(ctx, "", ""))

	got, err := u.Authenticate(ctx, "root", "root")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleSuperAdmin, got.Role)
}
