package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/exam"
)

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain kinds to status codes; anything else is a 500 with
// no internals in the body.
func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var de *exam.Error
	if !errors.As(err, &de) {
		log.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
		return
	}
	status := http.StatusInternalServerError
	switch de.Kind {
	case exam.KindNotFound:
		status = http.StatusNotFound
	case exam.KindInvalidState:
		status = http.StatusConflict
	case exam.KindForbidden:
		status = http.StatusForbidden
	case exam.KindValidation:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody{Error: de.Reason, Message: de.Msg, Details: de.Details})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
