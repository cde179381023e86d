package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/qhlc/qhlc-exams/internal/auth"
	authmw "github.com/qhlc/qhlc-exams/internal/auth/middleware"
	"github.com/qhlc/qhlc-exams/internal/db"
	"github.com/qhlc/qhlc-exams/internal/exam"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	users := auth.NewUsers(dbh)
	hash, err := bcrypt.GenerateFromPassword([]byte("root-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.EnsureAdmin(ctx, "root", string(hash)))

	h := &Handlers{
		Exams: exam.NewService(exam.NewSQLStore(dbh, nil), exam.WithLogger(log)),
		Users: users,
		Auth:  authmw.NewAuthService("test-secret", time.Hour),
		Log:   log,
		DB:    dbh,
	}
	return NewRouter(h, RouterOptions{CORSOrigins: []string{"http://localhost:3000"}})
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func login(t *testing.T, h http.Handler, user, pass string) string {
	t.Helper()
	rr := call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeBody[struct {
		AccessToken string `json:"access_token"`
	}](t, rr).AccessToken
}

func TestExamLifecycleOverHTTP(t *testing.T) {
	srv := newServer(t)
	admin := login(t, srv, "root", "root-pass")

	rr := call(t, srv, http.MethodPost, "/users", admin, map[string]string{"username": "aisha", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	student := login(t, srv, "aisha", "secret1")

	rr = call(t, srv, http.MethodPost, "/auth/login", "", map[string]string{"username": "aisha", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	now := time.Now().UTC()
	rr = call(t, srv, http.MethodPost, "/exams", admin, map[string]any{
		"title": "Tajweed Level 2", "duration": 60, "total_marks": 10, "passing_marks": 5, "exam_type": "regular",
		"start_date": now.Add(-time.Hour).Format(time.RFC3339), "end_date": now.Add(48 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	examID := decodeBody[exam.Exam](t, rr).ID

	rr = call(t, srv, http.MethodPost, "/exams", student, map[string]any{"title": "x"})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/questions", admin, map[string]any{
		"question_text": "Which letter is qalqalah?", "question_type": "mcq", "options": []string{"A", "B"},
		"correct_answer": "A", "marks": 5, "order_number": 1,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	mcqID := decodeBody[exam.Question](t, rr).ID
	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/questions", admin, map[string]any{
		"question_text": "Explain idgham.", "question_type": "text", "marks": 5, "order_number": 2,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	textID := decodeBody[exam.Question](t, rr).ID

	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/status", admin, map[string]string{"status": "active"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(t, srv, http.MethodGet, "/exams/"+examID, student, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotContains(t, rr.Body.String(), "correct_answer\":\"A")

	// start, resume, autosave
	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/attempt", student, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/attempt", student, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, decodeBody[struct {
		Resumed bool `json:"resumed"`
	}](t, rr).Resumed)

	rr = call(t, srv, http.MethodPut, "/exams/"+examID+"/progress", student, map[string]any{
		"answers": []map[string]string{{"question_id": mcqID, "answer_text": "B"}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// submit
	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/submit", student, map[string]any{
		"answers": []map[string]string{{"question_id": "ghost", "answer_text": "A"}},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "unknown_question", decodeBody[errorBody](t, rr).Error)

	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/submit", student, map[string]any{
		"answers": []map[string]string{
			{"question_id": mcqID, "answer_text": "A"},
			{"question_id": textID, "answer_text": "Merging of letters"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	sub := decodeBody[exam.SubmissionResult](t, rr)
	require.Equal(t, exam.StatusPending, sub.Status)
	require.True(t, sub.AwaitingEvaluation)
	require.Equal(t, 1, sub.AutoEvaluated)

	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/submit", student, map[string]any{"answers": []any{}})
	require.Equal(t, http.StatusConflict, rr.Code)

	// result before publication hides verdicts
	rr = call(t, srv, http.MethodGet, "/exams/"+examID+"/result", student, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"is_correct":null`)
	res := decodeBody[struct {
		Answers []struct {
			ID         string `json:"id"`
			QuestionID string `json:"question_id"`
		} `json:"answers"`
	}](t, rr)
	var textAnswerID string
	for _, a := range res.Answers {
		if a.QuestionID == textID {
			textAnswerID = a.ID
		}
	}
	require.NotEmpty(t, textAnswerID)

	// evaluation and publication are admin only
	rr = call(t, srv, http.MethodPost, "/answers/"+textAnswerID+"/evaluate", student, map[string]any{"is_correct": true, "score_awarded": 5})
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = call(t, srv, http.MethodPost, "/answers/"+textAnswerID+"/evaluate", admin, map[string]any{"is_correct": true, "score_awarded": 5, "remarks": "clear"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"is_correct":true`)

	rr = call(t, srv, http.MethodGet, "/certificates/available", student, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	avail := decodeBody[[]exam.CertificateAvailability](t, rr)
	require.Len(t, avail, 1)
	require.False(t, avail[0].CanGenerate)

	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/publish", student, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = call(t, srv, http.MethodPost, "/exams/"+examID+"/publish", admin, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, decodeBody[exam.Exam](t, rr).ResultsPublished)

	rr = call(t, srv, http.MethodGet, "/certificates/available", student, nil)
	avail = decodeBody[[]exam.CertificateAvailability](t, rr)
	require.True(t, avail[0].CanGenerate)
	require.Equal(t, 100.0, avail[0].Percentage)

	rr = call(t, srv, http.MethodPost, "/certificates", student, map[string]string{"exam_id": examID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	cert := decodeBody[exam.Certificate](t, rr)
	require.True(t, strings.HasPrefix(cert.Serial, "QHLC-REGULAR-"))

	rr = call(t, srv, http.MethodGet, "/certificates/available", student, nil)
	avail = decodeBody[[]exam.CertificateAvailability](t, rr)
	require.True(t, avail[0].Issued)
	require.False(t, avail[0].CanGenerate)

	// listing is scoped for candidates
	rr = call(t, srv, http.MethodGet, "/attempts?exam_id="+examID+"&user_id=someone-else", student, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decodeBody[[]exam.Attempt](t, rr), 1)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	srv := newServer(t)
	rr := call(t, srv, http.MethodGet, "/attempts", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = call(t, srv, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = call(t, srv, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = call(t, srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminRolesNeedSuperAdmin(t *testing.T) {
	srv := newServer(t)
	root := login(t, srv, "root", "root-pass")

	rr := call(t, srv, http.MethodPost, "/users", root, map[string]string{"username": "hafsa", "password": "secret1", "role": "admin"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	hafsa := login(t, srv, "hafsa", "secret1")

	rr = call(t, srv, http.MethodPost, "/users", hafsa, map[string]string{"username": "zaid", "password": "secret1", "role": "super_admin"})
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = call(t, srv, http.MethodPost, "/users", hafsa, map[string]string{"username": "zaid", "password": "secret1", "role": "coordinator"})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = call(t, srv, http.MethodPost, "/users", hafsa, map[string]string{"username": "zaid", "password": "secret1"})
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestWriteErrorStatusMapping(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	for _, tc := range []struct {
		err  error
		code int
	}{
		{&exam.Error{Kind: exam.KindNotFound, Reason: "exam_not_found"}, http.StatusNotFound},
		{&exam.Error{Kind: exam.KindInvalidState, Reason: "already_submitted"}, http.StatusConflict},
		{&exam.Error{Kind: exam.KindForbidden, Reason: "missing_capability"}, http.StatusForbidden},
		{&exam.Error{Kind: exam.KindValidation, Reason: "unknown_question"}, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	} {
		rr := httptest.NewRecorder()
		writeError(rr, log, tc.err)
		require.Equal(t, tc.code, rr.Code, tc.err.Error())
		require.NotContains(t, rr.Body.String(), "disk full")
	}
}
