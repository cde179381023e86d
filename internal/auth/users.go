// Package auth keeps local accounts: creation, password checks and the
// bootstrap admin.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/qhlc/qhlc-exams/internal/rbac"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidRole        = errors.New("invalid role")
)

const bcryptCost = 12

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Users struct {
	db   *sql.DB
	now  func() time.Time
	cost int
}

func NewUsers(db *sql.DB) *Users {
	return &Users{db: db, now: time.Now, cost: bcryptCost}
}

func validRole(role string) bool {
	_, ok := rbac.RolePermissions[role]
	return ok
}

// Create hashes password and inserts the user.
func (u *Users) Create(ctx context.Context, username, password, role string) (User, error) {
	username = strings.TrimSpace(username)
	if role == "" {
		role = rbac.RoleUser
	}
	if !validRole(role) {
		return User{}, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return User{}, err
	}
	usr := User{ID: uuid.NewString(), Username: username, Role: role, CreatedAt: u.now()}
	res, err := u.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (username) DO NOTHING`,
		usr.ID, usr.Username, string(hash), usr.Role, usr.CreatedAt.Unix())
	if err != nil {
		return User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return User{}, fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	return usr, nil
}

// Authenticate returns the user when password matches the stored hash.
func (u *Users) Authenticate(ctx context.Context, username, password string) (User, error) {
	var (
		usr     User
		hash    string
		created int64
	)
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash, created_at FROM users WHERE username=$1`,
		strings.TrimSpace(username)).Scan(&usr.ID, &usr.Username, &usr.Role, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	usr.CreatedAt = time.Unix(created, 0)
	return usr, nil
}

// ChangePassword replaces the hash after checking the current password.
func (u *Users) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	var stored string
	err := u.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), u.cost)
	if err != nil {
		return err
	}
	_, err = u.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), id)
	return err
}

// Role looks up the stored role for id or username.
func (u *Users) Role(ctx context.Context, sub string) (string, error) {
	var role string
	err := u.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1 OR username=$1`, sub).Scan(&role)
	return role, err
}

// EnsureAdmin creates the bootstrap super admin from a pre-computed bcrypt
// hash. An existing account with that username is left untouched.
func (u *Users) EnsureAdmin(ctx context.Context, username, passHash string) error {
	if username == "" || passHash == "" {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(passHash)); err != nil {
		return fmt.Errorf("admin hash: %w", err)
	}
	_, err := u.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (username) DO NOTHING`,
		uuid.NewString(), username, passHash, rbac.RoleSuperAdmin, u.now().Unix())
	return err
}
