package exam

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/grading"
	"github.com/qhlc/qhlc-exams/internal/metrics"
	syncx "github.com/qhlc/qhlc-exams/internal/sync"
)

// SubmitAttempt finalizes the caller's open attempt: it stores the submitted
// answers, grades every answer on the attempt and moves the attempt to
// completed when nothing is left for an evaluator.
func (s *Service) SubmitAttempt(ctx context.Context, userID, examID string, answers []AnswerInput) (SubmissionResult, error) {
	fields := logrus.Fields{"user_id": userID, "exam_id": examID}
	for i := range answers {
		if err := s.check(answers[i]); err != nil {
			return SubmissionResult{}, s.reject("submit_attempt", err, fields)
		}
	}

	var out SubmissionResult
	err := s.store.InTx(ctx, func(r Repo) error {
		now := s.now()
		e, a, err := s.openAttempt(ctx, r, userID, examID, now)
		if err != nil {
			return err
		}
		questions, err := r.Questions(ctx, e.ID)
		if err != nil {
			return err
		}
		batch, err := dedupeAnswers(answers, questions)
		if err != nil {
			return err
		}

		claimed, err := r.ClaimSubmission(ctx, a.ID, now)
		if err != nil {
			return fmt.Errorf("claim submission: %w", err)
		}
		if !claimed {
			return invalidState("already_submitted", "attempt %s was already submitted", a.ID)
		}

		for _, in := range batch {
			if err := r.UpsertAnswer(ctx, Answer{
				ID:         s.newID(),
				AttemptID:  a.ID,
				QuestionID: in.QuestionID,
				AnswerText: in.AnswerText,
				Grade:      Ungraded,
				UpdatedAt:  now,
			}); err != nil {
				return fmt.Errorf("save answer %s: %w", in.QuestionID, err)
			}
		}

		stored, err := r.Answers(ctx, a.ID)
		if err != nil {
			return err
		}
		byID := make(map[string]Question, len(questions))
		for _, q := range questions {
			byID[q.ID] = q
		}

		auto := 0
		total := 0.0
		for _, ans := range stored {
			q := byID[ans.QuestionID]
			res, err := s.grader.Grade(ctx, grading.Q{Type: string(q.Type), Points: q.Marks, CorrectAnswer: q.CorrectAnswer}, ans.AnswerText)
			if err != nil {
				return fmt.Errorf("grade question %s: %w", q.ID, err)
			}
			if res.NeedsManual {
				ans.Grade, ans.ScoreAwarded = Ungraded, 0
			} else {
				ans.Grade, ans.ScoreAwarded = GradeOf(res.Correct), res.AutoPoints
				auto++
			}
			ans.UpdatedAt = now
			if err := r.UpdateAnswerGrade(ctx, ans); err != nil {
				return fmt.Errorf("store grade %s: %w", ans.ID, err)
			}
			total += ans.ScoreAwarded
		}

		a.TotalScore = total
		if auto == len(questions) {
			a.Status = a.Status.Advance(StatusCompleted)
		}
		if err := r.UpdateAttemptScore(ctx, a, now); err != nil {
			return fmt.Errorf("store score: %w", err)
		}

		out = SubmissionResult{
			AttemptID:          a.ID,
			TotalScore:         total,
			PassingMarks:       e.PassingMarks,
			Passed:             total >= e.PassingMarks,
			Status:             a.Status,
			AutoEvaluated:      auto,
			TotalQuestions:     len(questions),
			AwaitingEvaluation: a.Status == StatusPending,
		}
		return r.AppendEvent(ctx, syncx.AttemptSubmitted, a.ID, out)
	})
	if err != nil {
		return SubmissionResult{}, s.reject("submit_attempt", err, fields)
	}

	metrics.Submissions.WithLabelValues(string(out.Status)).Inc()
	s.log.WithFields(fields).WithFields(logrus.Fields{
		"attempt_id":     out.AttemptID,
		"total_score":    out.TotalScore,
		"auto_evaluated": out.AutoEvaluated,
		"questions":      out.TotalQuestions,
	}).Info("attempt submitted")
	return out, nil
}
