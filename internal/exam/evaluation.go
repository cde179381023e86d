package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/metrics"
	"github.com/qhlc/qhlc-exams/internal/rbac"
	syncx "github.com/qhlc/qhlc-exams/internal/sync"
)

// recompute sets a.TotalScore to the sum of its answers and advances a
// submitted attempt to evaluated once no answer is left ungraded (or when
// force is set). It returns the number of ungraded answers.
func recompute(ctx context.Context, r Repo, a *Attempt, evaluator string, force bool, now time.Time) (int, error) {
	answers, err := r.Answers(ctx, a.ID)
	if err != nil {
		return 0, err
	}
	total := 0.0
	ungraded := 0
	for _, ans := range answers {
		total += ans.ScoreAwarded
		if ans.Grade == Ungraded {
			ungraded++
		}
	}
	a.TotalScore = total
	if a.Submitted() && (ungraded == 0 || force) {
		next := a.Status.Advance(StatusEvaluated)
		if next != a.Status {
			a.Status = next
			a.EvaluatedBy = evaluator
		}
	}
	if err := r.UpdateAttemptScore(ctx, *a, now); err != nil {
		return 0, fmt.Errorf("store score: %w", err)
	}
	return ungraded, nil
}

// EvaluateAnswer records an evaluator's verdict on one answer and recomputes
// the owning attempt in the same transaction.
func (s *Service) EvaluateAnswer(ctx context.Context, actor rbac.Identity, answerID string, in EvaluationInput) (Answer, error) {
	fields := logrus.Fields{"answer_id": answerID, "evaluator": actor.Subject}
	if err := s.authorize(actor, "answer:evaluate"); err != nil {
		return Answer{}, s.reject("evaluate_answer", err, fields)
	}
	if err := s.check(in); err != nil {
		return Answer{}, s.reject("evaluate_answer", err, fields)
	}

	var out Answer
	err := s.store.InTx(ctx, func(r Repo) error {
		now := s.now()
		ans, err := r.GetAnswer(ctx, answerID)
		if err != nil {
			return err
		}
		a, err := r.GetAttempt(ctx, ans.AttemptID)
		if err != nil {
			return err
		}
		if !a.Submitted() {
			return invalidState("not_submitted", "attempt %s is still in progress", a.ID)
		}
		questions, err := r.Questions(ctx, a.ExamID)
		if err != nil {
			return err
		}
		for _, q := range questions {
			if q.ID == ans.QuestionID && in.ScoreAwarded > q.Marks {
				return validationErr("score_exceeds_marks", "score %.2f exceeds %.2f marks", in.ScoreAwarded, q.Marks).
					with("marks", q.Marks)
			}
		}

		ans.Grade = GradeOf(in.IsCorrect)
		ans.ScoreAwarded = in.ScoreAwarded
		ans.Remarks = in.Remarks
		ans.EvaluatedBy = actor.Subject
		ans.UpdatedAt = now
		if err := r.UpdateAnswerGrade(ctx, ans); err != nil {
			return fmt.Errorf("store grade: %w", err)
		}
		if _, err := recompute(ctx, r, &a, actor.Subject, false, now); err != nil {
			return err
		}
		out = ans
		return r.AppendEvent(ctx, syncx.AnswerEvaluated, a.ID, map[string]any{
			"answer_id": ans.ID, "is_correct": in.IsCorrect, "score_awarded": in.ScoreAwarded,
			"evaluator": actor.Subject, "total_score": a.TotalScore, "status": a.Status,
		})
	})
	if err != nil {
		return Answer{}, s.reject("evaluate_answer", err, fields)
	}
	metrics.AnswersEvaluated.Inc()
	s.log.WithFields(fields).Info("answer evaluated")
	return out, nil
}

// RecomputeAttempt re-derives total_score from the answers. It is idempotent.
func (s *Service) RecomputeAttempt(ctx context.Context, actor rbac.Identity, attemptID string) (Attempt, error) {
	fields := logrus.Fields{"attempt_id": attemptID, "evaluator": actor.Subject}
	if err := s.authorize(actor, "answer:evaluate"); err != nil {
		return Attempt{}, s.reject("recompute_attempt", err, fields)
	}
	var out Attempt
	err := s.store.InTx(ctx, func(r Repo) error {
		a, err := r.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if _, err := recompute(ctx, r, &a, actor.Subject, false, s.now()); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return Attempt{}, s.reject("recompute_attempt", err, fields)
	}
	return out, nil
}

// FinalizeEvaluations is the bulk "evaluate users" action: every submitted,
// not yet evaluated attempt of the listed users (all users when empty) gets its
// total recomputed and moves to evaluated. Ungraded answers count as zero.
func (s *Service) FinalizeEvaluations(ctx context.Context, actor rbac.Identity, examID string, userIDs []string) (int, error) {
	fields := logrus.Fields{"exam_id": examID, "evaluator": actor.Subject}
	if err := s.authorize(actor, "answer:evaluate"); err != nil {
		return 0, s.reject("finalize_evaluations", err, fields)
	}
	wanted := map[string]bool{}
	for _, u := range userIDs {
		wanted[u] = true
	}

	n := 0
	err := s.store.InTx(ctx, func(r Repo) error {
		if _, err := r.GetExam(ctx, examID); err != nil {
			return err
		}
		now := s.now()
		var targets []Attempt
		for _, st := range []AttemptStatus{StatusPending, StatusCompleted} {
			for offset := 0; ; offset += 200 {
				page, err := r.ListAttempts(ctx, AttemptListOpts{ExamID: examID, Status: string(st), Limit: 200, Offset: offset})
				if err != nil {
					return err
				}
				for _, a := range page {
					if a.Submitted() && (len(wanted) == 0 || wanted[a.UserID]) {
						targets = append(targets, a)
					}
				}
				if len(page) < 200 {
					break
				}
			}
		}
		for i := range targets {
			if _, err := recompute(ctx, r, &targets[i], actor.Subject, true, now); err != nil {
				return err
			}
			n++
		}
		return r.AppendEvent(ctx, syncx.AttemptsFinalized, examID, map[string]any{"count": n, "evaluator": actor.Subject})
	})
	if err != nil {
		return 0, s.reject("finalize_evaluations", err, fields)
	}
	s.log.WithFields(fields).Infof("%d attempt(s) marked evaluated", n)
	return n, nil
}
