package rbac

import (
	"context"
	"errors"
	"strings"
)

type Checker struct {
	RolePermissions map[string][]string
}

func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role, perm string) bool {
	perms, ok := c.RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == "*" || matchPerm(p, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func (c *Checker) All(role string, perms ...string) bool {
	for _, p := range perms {
		if !c.Has(role, p) {
			return false
		}
	}
	return true
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// ---- policy ----

// Identity is the caller as resolved from a bearer credential.
type Identity struct {
	Subject string
	Role    string
}

var ErrForbidden = errors.New("forbidden")

var defaultChecker = NewChecker(nil)

// Authorize is the single capability check shared by HTTP middleware and the
// service layer.
func Authorize(id Identity, capability string) error {
	return defaultChecker.Authorize(id, capability)
}

func (c *Checker) Authorize(id Identity, capability string) error {
	if id.Subject == "" || id.Role == "" || !c.Has(id.Role, capability) {
		return ErrForbidden
	}
	return nil
}

// ---- identity in context ----

type ctxKey int

const (
	ctxKeyRole ctxKey = iota
	ctxKeySub
)

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKeyRole, role)
}

func RoleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRole).(string); ok {
		return s
	}
	return ""
}

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeySub).(string); ok {
		return s
	}
	return ""
}

func IdentityFromContext(ctx context.Context) Identity {
	return Identity{Subject: SubjectFromContext(ctx), Role: RoleFromContext(ctx)}
}
