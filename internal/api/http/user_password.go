package http

import (
	"errors"
	"net/http"

	"github.com/qhlc/qhlc-exams/internal/auth"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,nefield=OldPassword"`
}

// POST /users/change-password
func ChangePasswordHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := rbac.SubjectFromContext(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req changePasswordReq
		if !decode(w, r, &req) {
			return
		}
		if err := validate.Struct(req); err != nil {
			badRequest(w, err.Error())
			return
		}
		err := h.Users.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "incorrect_old_password"})
			return
		}
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
