package http

import (
	"net/http"
	"strings"

	"github.com/qhlc/qhlc-exams/internal/exam"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

// GET /attempts?exam_id=...&user_id=...&status=...&limit=50&offset=0
// Callers without attempt:view-all only ever see their own attempts.
func ListAttemptsHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := h.Exams.ListAttempts(r.Context(), rbac.IdentityFromContext(r.Context()), exam.AttemptListOpts{
			ExamID: strings.TrimSpace(q.Get("exam_id")),
			UserID: strings.TrimSpace(q.Get("user_id")),
			Status: strings.TrimSpace(q.Get("status")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if list == nil {
			list = []exam.Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
