// Package notify pushes published exam results to an external webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/exam"
)

const (
	StatusPending = "pending"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

type Clock func() time.Time

// Store is the slice of exam.Repo the syncer reads and marks.
type Store interface {
	GetExam(ctx context.Context, id string) (exam.Exam, error)
	PublishedAttempts(ctx context.Context, examID string) ([]exam.Attempt, error)
	FailedNotices(ctx context.Context) ([]exam.Attempt, error)
	MarkNotify(ctx context.Context, attemptID, status, lastErr string) error
}

// Notice is the body delivered for one published attempt.
type Notice struct {
	ExamID      string    `json:"exam_id"`
	ExamTitle   string    `json:"exam_title"`
	AttemptID   string    `json:"attempt_id"`
	UserID      string    `json:"user_id"`
	Score       float64   `json:"score"`
	TotalMarks  float64   `json:"total_marks"`
	Passed      bool      `json:"passed"`
	PublishedAt time.Time `json:"published_at"`
}

type Client interface {
	PostResult(ctx context.Context, n Notice) error
}

type Syncer struct {
	Store  Store
	Client Client
	Now    Clock
	Log    logrus.FieldLogger
}

func New(store Store, client Client, now Clock, log logrus.FieldLogger) *Syncer {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Syncer{Store: store, Client: client, Now: now, Log: log}
}

// ResultsPublished delivers a notice for every published attempt of examID
// that has not been delivered yet. Failures are recorded per attempt and
// joined into the returned error.
func (s *Syncer) ResultsPublished(ctx context.Context, examID string) error {
	ex, err := s.Store.GetExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("exam: %w", err)
	}
	attempts, err := s.Store.PublishedAttempts(ctx, examID)
	if err != nil {
		return fmt.Errorf("published attempts: %w", err)
	}
	var errs []error
	sent := 0
	for _, at := range attempts {
		if err := s.SyncAttempt(ctx, ex, at); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	s.Log.WithFields(logrus.Fields{"exam_id": examID, "sent": sent, "failed": len(errs)}).Info("result notices delivered")
	return errors.Join(errs...)
}

// Redeliver retries every notice whose last delivery failed and returns how
// many went through.
func (s *Syncer) Redeliver(ctx context.Context) (int, error) {
	failed, err := s.Store.FailedNotices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed notices: %w", err)
	}
	exams := map[string]exam.Exam{}
	var errs []error
	sent := 0
	for _, at := range failed {
		ex, ok := exams[at.ExamID]
		if !ok {
			if ex, err = s.Store.GetExam(ctx, at.ExamID); err != nil {
				errs = append(errs, fmt.Errorf("exam %s: %w", at.ExamID, err))
				continue
			}
			exams[at.ExamID] = ex
		}
		if err := s.SyncAttempt(ctx, ex, at); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	if len(failed) > 0 {
		s.Log.WithFields(logrus.Fields{"sent": sent, "failed": len(errs)}).Info("result notices redelivered")
	}
	return sent, errors.Join(errs...)
}

func (s *Syncer) SyncAttempt(ctx context.Context, ex exam.Exam, at exam.Attempt) error {
	if at.Status != exam.StatusPublished {
		return fmt.Errorf("attempt %s is %s, not published", at.ID, at.Status)
	}
	_ = s.Store.MarkNotify(ctx, at.ID, StatusPending, "")

	if err := s.Client.PostResult(ctx, Notice{
		ExamID:      ex.ID,
		ExamTitle:   ex.Title,
		AttemptID:   at.ID,
		UserID:      at.UserID,
		Score:       at.TotalScore,
		TotalMarks:  ex.TotalMarks,
		Passed:      at.TotalScore >= ex.PassingMarks,
		PublishedAt: s.Now(),
	}); err != nil {
		_ = s.Store.MarkNotify(ctx, at.ID, StatusFailed, err.Error())
		return fmt.Errorf("notify attempt %s: %w", at.ID, err)
	}
	return s.Store.MarkNotify(ctx, at.ID, StatusOK, "")
}

// Nop is used when no webhook is configured.
type Nop struct{}

func (Nop) PostResult(context.Context, Notice) error { return nil }
