package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qhlc/qhlc-exams/internal/exam"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

type answersReq struct {
	Answers []exam.AnswerInput `json:"answers"`
}

// POST /exams/{examID}/attempt
func StartAttemptHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := rbac.SubjectFromContext(r.Context())
		a, resumed, err := h.Exams.StartAttempt(r.Context(), sub, chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		status := http.StatusCreated
		if resumed {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{"attempt": a, "resumed": resumed})
	}
}

// PUT /exams/{examID}/progress
func SaveProgressHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answersReq
		if !decode(w, r, &req) {
			return
		}
		sub := rbac.SubjectFromContext(r.Context())
		ack, err := h.Exams.SaveProgress(r.Context(), sub, chi.URLParam(r, "examID"), req.Answers)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

// POST /exams/{examID}/submit
func SubmitAttemptHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answersReq
		if !decode(w, r, &req) {
			return
		}
		sub := rbac.SubjectFromContext(r.Context())
		res, err := h.Exams.SubmitAttempt(r.Context(), sub, chi.URLParam(r, "examID"), req.Answers)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /exams/{examID}/result
func GetResultHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := rbac.SubjectFromContext(r.Context())
		res, err := h.Exams.GetResult(r.Context(), sub, chi.URLParam(r, "examID"))
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /certificates/available
func AvailableCertificatesHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := h.Exams.GetAvailableCertificates(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /certificates  {"exam_id": "..."}
func IssueCertificateHandler(h *Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ExamID string `json:"exam_id"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.ExamID == "" {
			badRequest(w, "exam_id required")
			return
		}
		c, err := h.Exams.IssueCertificate(r.Context(), rbac.SubjectFromContext(r.Context()), req.ExamID)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}
