package exam

import (
	"context"
	"time"
)

type AttemptListOpts struct {
	ExamID string // filter by exam
	UserID string // filter by user
	Status string // optional: pending|completed|evaluated|published
	Limit  int
	Offset int
}

type ExamListOpts struct {
	Status string // optional: draft|active|inactive
	Q      string // title substring
	Limit  int
	Offset int
}

// Repo is the set of row operations the lifecycle needs. Every method runs on
// whatever connection or transaction the Repo was obtained from.
type Repo interface {
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, opts ExamListOpts) ([]Exam, error)
	InsertExam(ctx context.Context, e Exam) error
	SetExamStatus(ctx context.Context, id string, st ExamStatus) error
	MarkResultsPublished(ctx context.Context, id string) error

	InsertQuestion(ctx context.Context, q Question) error
	Questions(ctx context.Context, examID string) ([]Question, error)

	GetAttempt(ctx context.Context, id string) (Attempt, error)
	LatestAttempt(ctx context.Context, userID, examID string) (Attempt, error)
	FindPendingAttempt(ctx context.Context, userID, examID string) (Attempt, bool, error)
	InsertAttempt(ctx context.Context, a Attempt) (bool, error)
	TouchOpenAttempt(ctx context.Context, id string, now time.Time) (bool, error)
	ClaimSubmission(ctx context.Context, id string, now time.Time) (bool, error)
	UpdateAttemptScore(ctx context.Context, a Attempt, now time.Time) error
	PublishAttempts(ctx context.Context, examID string, now time.Time) (int64, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	GradedAttempts(ctx context.Context, userID string) ([]Attempt, error)
	PublishedAttempts(ctx context.Context, examID string) ([]Attempt, error)
	FailedNotices(ctx context.Context) ([]Attempt, error)
	MarkNotify(ctx context.Context, attemptID, status, lastErr string) error

	UpsertAnswer(ctx context.Context, a Answer) error
	GetAnswer(ctx context.Context, id string) (Answer, error)
	Answers(ctx context.Context, attemptID string) ([]Answer, error)
	UpdateAnswerGrade(ctx context.Context, a Answer) error

	GetCertificate(ctx context.Context, userID, examID string) (Certificate, bool, error)
	InsertCertificate(ctx context.Context, c Certificate) (bool, error)
	CertificatesForUser(ctx context.Context, userID string) ([]Certificate, error)
	UncertifiedPassingAttempts(ctx context.Context) ([]Attempt, error)

	AppendEvent(ctx context.Context, typ, key string, data any) error
}

// Store hands out Repos: one bound to the pool for reads, one bound to a
// transaction for read-modify-write sequences.
type Store interface {
	Read() Repo
	InTx(ctx context.Context, fn func(Repo) error) error
}
