package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/auth"
	authmw "github.com/qhlc/qhlc-exams/internal/auth/middleware"
	"github.com/qhlc/qhlc-exams/internal/exam"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

// Handlers carries what the route handlers need.
type Handlers struct {
	Exams *exam.Service
	Users *auth.Users
	Auth  *authmw.AuthService
	Log   logrus.FieldLogger
	DB    *sql.DB // readiness probe only
}

type RouterOptions struct {
	CORSOrigins        []string
	AllowClaimFallback bool
	Timeout            time.Duration
}

func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", LoginHandler(h))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(h.Auth))
		pr.Use(authmw.AttachRoleFromDB(h.Users, opts.AllowClaimFallback))

		pr.With(rbac.Require("users:create")).Post("/users", CreateUserHandler(h))
		pr.With(rbac.Require("users:create")).Post("/users/bulk", BulkCreateUsersHandler(h))
		pr.Post("/users/change-password", ChangePasswordHandler(h))

		// Authoring
		pr.With(rbac.Require("exam:create")).Post("/exams", CreateExamHandler(h))
		pr.With(rbac.Require("exam:create")).Post("/exams/{examID}/questions", AddQuestionHandler(h))
		pr.With(rbac.Require("exam:create")).Post("/exams/{examID}/status", SetExamStatusHandler(h))
		pr.With(rbac.Require("exam:view")).Get("/exams", ListExamsHandler(h))
		pr.With(rbac.Require("exam:view")).Get("/exams/{examID}", GetExamHandler(h))

		// Candidate flow
		pr.With(rbac.Require("attempt:create")).Post("/exams/{examID}/attempt", StartAttemptHandler(h))
		pr.With(rbac.Require("attempt:save")).Put("/exams/{examID}/progress", SaveProgressHandler(h))
		pr.With(rbac.Require("attempt:submit")).Post("/exams/{examID}/submit", SubmitAttemptHandler(h))
		pr.With(rbac.Require("attempt:view-own")).Get("/exams/{examID}/result", GetResultHandler(h))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/attempts", ListAttemptsHandler(h))

		// Evaluation and publication
		pr.With(rbac.Require("answer:evaluate")).Post("/answers/{answerID}/evaluate", EvaluateAnswerHandler(h))
		pr.With(rbac.Require("answer:evaluate")).Post("/attempts/{attemptID}/recompute", RecomputeAttemptHandler(h))
		pr.With(rbac.Require("answer:evaluate")).Post("/exams/{examID}/evaluate-users", EvaluateUsersHandler(h))
		pr.With(rbac.Require("results:publish")).Post("/exams/{examID}/publish", PublishResultsHandler(h))

		// Certificates
		pr.With(rbac.Require("certificate:view-own")).Get("/certificates/available", AvailableCertificatesHandler(h))
		pr.With(rbac.Require("certificate:issue-own")).Post("/certificates", IssueCertificateHandler(h))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if h.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := h.DB.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
