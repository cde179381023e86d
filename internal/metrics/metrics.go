package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qhlc",
		Name:      "attempts_started_total",
		Help:      "Attempts created or resumed.",
	}, []string{"outcome"}) // created|resumed

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qhlc",
		Name:      "submissions_total",
		Help:      "Accepted submissions by resulting status.",
	}, []string{"status"})

	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qhlc",
		Name:      "lifecycle_rejections_total",
		Help:      "Lifecycle operations rejected with a domain error.",
	}, []string{"op", "reason"})

	AnswersEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qhlc",
		Name:      "answers_evaluated_total",
		Help:      "Answers graded by an evaluator.",
	})

	AttemptsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qhlc",
		Name:      "attempts_published_total",
		Help:      "Attempts moved to published by result publication.",
	})

	CertificatesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qhlc",
		Name:      "certificates_issued_total",
		Help:      "Certificates minted.",
	})
)
