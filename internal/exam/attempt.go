package exam

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/metrics"
	syncx "github.com/qhlc/qhlc-exams/internal/sync"
)

// StartAttempt resumes the caller's pending attempt on examID or creates one.
// A pending attempt that was already submitted and waits for an evaluator is
// returned as is; it takes no more answers. The bool result is true when an
// existing attempt was resumed.
func (s *Service) StartAttempt(ctx context.Context, userID, examID string) (Attempt, bool, error) {
	fields := logrus.Fields{"user_id": userID, "exam_id": examID}
	var (
		out     Attempt
		resumed bool
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		if e.Status != ExamActive {
			return notFound("exam_not_found", "exam %s is not active", examID)
		}
		now := s.now()
		if !e.Available(now) {
			return invalidState("not_available", "exam is not available at this time").
				with("start_date", e.StartAt).with("end_date", e.EndAt)
		}

		if a, ok, err := r.FindPendingAttempt(ctx, userID, examID); err != nil {
			return err
		} else if ok {
			out, resumed = a, true
			return nil
		}

		a := Attempt{
			ID:         s.newID(),
			ExamID:     examID,
			UserID:     userID,
			Status:     StatusPending,
			StartedAt:  now,
			TotalScore: 0,
		}
		inserted, err := r.InsertAttempt(ctx, a)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if !inserted {
			// lost the race against a concurrent start: hand back the winner
			winner, ok, err := r.FindPendingAttempt(ctx, userID, examID)
			if err != nil {
				return err
			}
			if !ok {
				return invalidState("attempt_conflict", "could not start attempt, retry")
			}
			out, resumed = winner, true
			return nil
		}
		out = a
		return r.AppendEvent(ctx, syncx.AttemptStarted, a.ID, map[string]any{"exam_id": examID, "user_id": userID})
	})
	if err != nil {
		return Attempt{}, false, s.reject("start_attempt", err, fields)
	}

	outcome := "created"
	if resumed {
		outcome = "resumed"
	}
	metrics.AttemptsStarted.WithLabelValues(outcome).Inc()
	s.log.WithFields(fields).WithField("attempt_id", out.ID).Info("attempt " + outcome)
	return out, resumed, nil
}
