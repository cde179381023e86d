package exam

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// openAttempt loads the caller's current attempt and checks it may still take
// answers: not yet submitted and inside the time budget.
func (s *Service) openAttempt(ctx context.Context, r Repo, userID, examID string, now time.Time) (Exam, Attempt, error) {
	e, err := r.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, Attempt{}, err
	}
	a, err := r.LatestAttempt(ctx, userID, examID)
	if err != nil {
		return Exam{}, Attempt{}, err
	}
	if !a.Open() {
		return Exam{}, Attempt{}, invalidState("already_submitted", "attempt %s is %s", a.ID, a.Status).
			with("status", a.Status)
	}
	if elapsed := now.Sub(a.StartedAt); elapsed > e.Duration() {
		return Exam{}, Attempt{}, invalidState("time_limit_exceeded", "time limit exceeded").
			with("duration_min", e.DurationMin).with("elapsed_sec", int64(elapsed.Seconds()))
	}
	return e, a, nil
}

// dedupeAnswers keeps the last entry per question, in first-seen order, and
// rejects question ids that are not on the exam.
func dedupeAnswers(in []AnswerInput, questions []Question) ([]AnswerInput, error) {
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	pos := map[string]int{}
	out := make([]AnswerInput, 0, len(in))
	for _, a := range in {
		if _, ok := known[a.QuestionID]; !ok {
			return nil, validationErr("unknown_question", "question %q is not part of this exam", a.QuestionID).
				with("question_id", a.QuestionID)
		}
		if i, seen := pos[a.QuestionID]; seen {
			out[i] = a
			continue
		}
		pos[a.QuestionID] = len(out)
		out = append(out, a)
	}
	return out, nil
}

// SaveProgress autosaves answers on the caller's open attempt. It never
// touches the attempt's status or score.
func (s *Service) SaveProgress(ctx context.Context, userID, examID string, answers []AnswerInput) (ProgressAck, error) {
	fields := logrus.Fields{"user_id": userID, "exam_id": examID}
	for i := range answers {
		if err := s.check(answers[i]); err != nil {
			return ProgressAck{}, s.reject("save_progress", err, fields)
		}
	}

	var ack ProgressAck
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
		// lock the row; a submission that got there first leaves 0 rows
		ok, err := r.TouchOpenAttempt(ctx, a.ID, now)
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		if !ok {
			return invalidState("already_submitted", "attempt %s was submitted", a.ID)
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
		ack = ProgressAck{AttemptID: a.ID, Saved: len(batch), SavedAt: now}
		return nil
	})
	if err != nil {
		return ProgressAck{}, s.reject("save_progress", err, fields)
	}
	s.log.WithFields(fields).WithField("attempt_id", ack.AttemptID).Debugf("saved %d answer(s)", ack.Saved)
	return ack, nil
}
