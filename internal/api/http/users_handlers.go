package http

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/qhlc/qhlc-exams/internal/auth"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

type userRow struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role"`
}

var validate = validator.New()

// POST /auth/login  {"username": "...", "password": "..."}
func LoginHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if !decode(w, r, &req) {
			return
		}
		u, err := h.Users.Authenticate(r.Context(), req.Username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid_credentials"})
			return
		}
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		tok, err := h.Auth.IssueJWT(u.ID, u.Role)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": tok, "user": u})
	}
}

// POST /users
func CreateUserHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userRow
		if !decode(w, r, &req) {
			return
		}
		if err := validate.Struct(req); err != nil {
			badRequest(w, err.Error())
			return
		}
		if !canGrant(r, req.Role) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "missing_capability", Message: "cannot grant role " + req.Role})
			return
		}
		u, err := h.Users.Create(r.Context(), req.Username, req.Password, req.Role)
		if err != nil {
			writeUserError(w, h, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

// POST /users/bulk  text/csv with header username,password[,role]
// Rows are created independently; failures are reported per row.
func BulkCreateUsersHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := parseCSV(http.MaxBytesReader(w, r.Body, 4<<20))
		if err != nil {
			badRequest(w, "bad csv: "+err.Error())
			return
		}
		created := 0
		failed := map[string]string{}
		for _, row := range rows {
			if err := validate.Struct(row); err != nil {
				failed[row.Username] = err.Error()
				continue
			}
			if !canGrant(r, row.Role) {
				failed[row.Username] = "cannot grant role " + row.Role
				continue
			}
			if _, err := h.Users.Create(r.Context(), row.Username, row.Password, row.Role); err != nil {
				failed[row.Username] = err.Error()
				continue
			}
			created++
		}
		writeJSON(w, http.StatusOK, map[string]any{"created": created, "failed": failed})
	}
}

// canGrant keeps admin and super_admin accounts behind users:create-admin.
func canGrant(r *http.Request, role string) bool {
	if role != rbac.RoleAdmin && role != rbac.RoleSuperAdmin {
		return true
	}
	return rbac.Authorize(rbac.IdentityFromContext(r.Context()), "users:create-admin") == nil
}

func writeUserError(w http.ResponseWriter, h *Handlers, err error) {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: "user_exists", Message: err.Error()})
	case errors.Is(err, auth.ErrInvalidRole):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_role", Message: err.Error()})
	default:
		writeError(w, h.Log, err)
	}
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"username", "password"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := userRow{
			Username: rec[idx["username"]],
			Password: rec[idx["password"]],
		}
		if i, ok := idx["role"]; ok {
			row.Role = strings.ToLower(rec[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
