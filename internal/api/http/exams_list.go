package http

import (
	"net/http"
	"strings"

	"github.com/qhlc/qhlc-exams/internal/exam"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

// GET /exams?q=...&status=...&limit=50&offset=0
func ListExamsHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := h.Exams.ListExams(r.Context(), rbac.IdentityFromContext(r.Context()), exam.ExamListOpts{
			Q:      strings.TrimSpace(q.Get("q")),
			Status: strings.TrimSpace(q.Get("status")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if list == nil {
			list = []exam.Exam{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
