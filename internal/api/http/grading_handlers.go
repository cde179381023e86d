package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/qhlc/qhlc-exams/internal/exam"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

// POST /answers/{answerID}/evaluate
func EvaluateAnswerHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		answerID := strings.TrimSpace(chi.URLParam(r, "answerID"))
		var req exam.EvaluationInput
		if !decode(w, r, &req) {
			return
		}
		ans, err := h.Exams.EvaluateAnswer(r.Context(), rbac.IdentityFromContext(r.Context()), answerID, req)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, ans)
	}
}

// POST /attempts/{attemptID}/recompute
func RecomputeAttemptHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := h.Exams.RecomputeAttempt(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /exams/{examID}/evaluate-users  {"user_ids": [...]}; empty means everyone
func EvaluateUsersHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserIDs []string `json:"user_ids"`
		}
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		n, err := h.Exams.FinalizeEvaluations(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "examID"), req.UserIDs)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"evaluated": n})
	}
}

// POST /exams/{examID}/publish
func PublishResultsHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := h.Exams.PublishResults(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}
