package exam

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/metrics"
	"github.com/qhlc/qhlc-exams/internal/rbac"
	syncx "github.com/qhlc/qhlc-exams/internal/sync"
)

// PublishResults opens the certificate gate for examID and moves every
// completed or evaluated attempt to published. Publishing again is harmless:
// only attempts graded since the last call move, and the publish hooks run
// again.
func (s *Service) PublishResults(ctx context.Context, actor rbac.Identity, examID string) (Exam, error) {
	fields := logrus.Fields{"exam_id": examID, "publisher": actor.Subject}
	if err := s.authorize(actor, "results:publish"); err != nil {
		return Exam{}, s.reject("publish_results", err, fields)
	}

	var (
		out   Exam
		moved int64
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		if !e.ResultsPublished {
			if err := r.MarkResultsPublished(ctx, examID); err != nil {
				return err
			}
			e.ResultsPublished = true
		}
		moved, err = r.PublishAttempts(ctx, examID, s.now())
		if err != nil {
			return err
		}
		out = e
		if moved == 0 {
			return nil
		}
		return r.AppendEvent(ctx, syncx.ResultsPublished, examID, map[string]any{
			"publisher": actor.Subject, "attempts": moved,
		})
	})
	if err != nil {
		return Exam{}, s.reject("publish_results", err, fields)
	}

	metrics.AttemptsPublished.Add(float64(moved))
	s.log.WithFields(fields).WithField("attempts", moved).Info("results published")
	// hooks run on every publish; the notifier only sends undelivered notices
	s.runHooks(ctx, examID, fields)
	return out, nil
}
