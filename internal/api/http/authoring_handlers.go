package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qhlc/qhlc-exams/internal/exam"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

// POST /exams
func CreateExamHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.NewExam
		if !decode(w, r, &req) {
			return
		}
		e, err := h.Exams.CreateExam(r.Context(), rbac.IdentityFromContext(r.Context()), req)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

// POST /exams/{examID}/questions
func AddQuestionHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exam.NewQuestion
		if !decode(w, r, &req) {
			return
		}
		q, err := h.Exams.AddQuestion(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "examID"), req)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// POST /exams/{examID}/status  {"status": "active"}
func SetExamStatusHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status exam.ExamStatus `json:"status"`
		}
		if !decode(w, r, &req) {
			return
		}
		e, err := h.Exams.SetExamStatus(r.Context(), rbac.IdentityFromContext(r.Context()), chi.URLParam(r, "examID"), req.Status)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// GET /exams/{examID}
// Authors get the answer key; everyone else gets the candidate view.
func GetExamHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := rbac.IdentityFromContext(r.Context())
		examID := chi.URLParam(r, "examID")
		var (
			e   exam.Exam
			err error
		)
		if rbac.Authorize(id, "exam:create") == nil {
			e, err = h.Exams.GetExamAdmin(r.Context(), id, examID)
		} else {
			e, err = h.Exams.GetExam(r.Context(), examID)
		}
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}
