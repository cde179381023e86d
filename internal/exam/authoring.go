package exam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/rbac"
)

type NewExam struct {
	Title            string    `json:"title" validate:"required,max=200"`
	DurationMin      int       `json:"duration" validate:"gt=0"`
	TotalMarks       float64   `json:"total_marks" validate:"gt=0"`
	PassingMarks     float64   `json:"passing_marks" validate:"gte=0,ltefield=TotalMarks"`
	Type             ExamType  `json:"exam_type" validate:"required,oneof=mock regular final"`
	StartAt          time.Time `json:"start_date" validate:"required"`
	EndAt            time.Time `json:"end_date" validate:"required,gtfield=StartAt"`
	ShuffleQuestions bool      `json:"shuffle_questions"`
}

type NewQuestion struct {
	Text          string       `json:"question_text" validate:"required"`
	Type          QuestionType `json:"question_type" validate:"required,oneof=mcq truefalse text"`
	Options       []string     `json:"options" validate:"omitempty,dive,required"`
	CorrectAnswer string       `json:"correct_answer" validate:"required_unless=Type text"`
	Marks         float64      `json:"marks" validate:"gt=0"`
	OrderNumber   int          `json:"order_number" validate:"gt=0"`
}

// CreateExam stores a new exam in draft.
func (s *Service) CreateExam(ctx context.Context, actor rbac.Identity, in NewExam) (Exam, error) {
	fields := logrus.Fields{"by": actor.Subject}
	e, err := s.createExam(ctx, actor, in)
	if err != nil {
		return Exam{}, s.reject("create_exam", err, fields)
	}
	s.log.WithFields(fields).WithField("exam_id", e.ID).Info("exam created")
	return e, nil
}

func (s *Service) createExam(ctx context.Context, actor rbac.Identity, in NewExam) (Exam, error) {
	if err := s.authorize(actor, "exam:create"); err != nil {
		return Exam{}, err
	}
	if err := s.check(in); err != nil {
		return Exam{}, err
	}
	e := Exam{
		ID:               s.newID(),
		Title:            strings.TrimSpace(in.Title),
		DurationMin:      in.DurationMin,
		TotalMarks:       in.TotalMarks,
		PassingMarks:     in.PassingMarks,
		Type:             in.Type,
		Status:           ExamDraft,
		StartAt:          in.StartAt,
		EndAt:            in.EndAt,
		ShuffleQuestions: in.ShuffleQuestions,
		CreatedBy:        actor.Subject,
		CreatedAt:        s.now(),
	}
	if err := s.store.Read().InsertExam(ctx, e); err != nil {
		return Exam{}, fmt.Errorf("insert exam: %w", err)
	}
	return e, nil
}

// AddQuestion appends a question to a draft exam.
func (s *Service) AddQuestion(ctx context.Context, actor rbac.Identity, examID string, in NewQuestion) (Question, error) {
	q, err := s.addQuestion(ctx, actor, examID, in)
	if err != nil {
		return Question{}, s.reject("add_question", err, logrus.Fields{"exam_id": examID, "by": actor.Subject})
	}
	return q, nil
}

func (s *Service) addQuestion(ctx context.Context, actor rbac.Identity, examID string, in NewQuestion) (Question, error) {
	if err := s.authorize(actor, "exam:create"); err != nil {
		return Question{}, err
	}
	if err := s.check(in); err != nil {
		return Question{}, err
	}
	switch in.Type {
	case QuestionMCQ:
		if len(in.Options) < 2 {
			return Question{}, validationErr("invalid_options", "mcq needs at least two options")
		}
		found := false
		for _, o := range in.Options {
			found = found || o == in.CorrectAnswer
		}
		if !found {
			return Question{}, validationErr("invalid_correct_answer", "correct answer must be one of the options")
		}
	case QuestionTrueFalse:
		ca := strings.ToLower(strings.TrimSpace(in.CorrectAnswer))
		if ca != "true" && ca != "false" {
			return Question{}, validationErr("invalid_correct_answer", "truefalse answer must be true or false")
		}
		in.Options = nil
	case QuestionText:
		in.Options, in.CorrectAnswer = nil, ""
	}

	q := Question{
		ID:            s.newID(),
		ExamID:        examID,
		Text:          in.Text,
		Type:          in.Type,
		Options:       in.Options,
		CorrectAnswer: in.CorrectAnswer,
		Marks:         in.Marks,
		OrderNumber:   in.OrderNumber,
	}
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		if e.Status != ExamDraft {
			return invalidState("exam_not_draft", "questions can only be added while the exam is a draft")
		}
		return r.InsertQuestion(ctx, q)
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

// SetExamStatus moves an exam between draft, active and inactive. An exam
// never returns to draft and needs at least one question to go active.
func (s *Service) SetExamStatus(ctx context.Context, actor rbac.Identity, examID string, st ExamStatus) (Exam, error) {
	fields := logrus.Fields{"exam_id": examID, "status": st, "by": actor.Subject}
	if err := s.authorize(actor, "exam:create"); err != nil {
		return Exam{}, s.reject("set_exam_status", err, fields)
	}
	var out Exam
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		switch st {
		case ExamActive:
			qs, err := r.Questions(ctx, examID)
			if err != nil {
				return err
			}
			if len(qs) == 0 {
				return invalidState("no_questions", "exam %s has no questions", examID)
			}
		case ExamInactive:
		default:
			return validationErr("invalid_status", "cannot move exam to %q", st)
		}
		if err := r.SetExamStatus(ctx, examID, st); err != nil {
			return err
		}
		e.Status = st
		out = e
		return nil
	})
	if err != nil {
		return Exam{}, s.reject("set_exam_status", err, fields)
	}
	return out, nil
}

// GetExam returns the exam as a candidate sees it: no correct answers, and
// shuffled when the exam asks for it.
func (s *Service) GetExam(ctx context.Context, examID string) (Exam, error) {
	r := s.store.Read()
	e, err := r.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if e.Status != ExamActive {
		return Exam{}, notFound("exam_not_found", "exam %s is not active", examID)
	}
	qs, err := r.Questions(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	for i := range qs {
		qs[i].CorrectAnswer = ""
	}
	if e.ShuffleQuestions {
		s.shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}
	e.Questions = qs
	return e, nil
}

// ListExams shows authors every exam and everyone else only active ones.
func (s *Service) ListExams(ctx context.Context, actor rbac.Identity, opts ExamListOpts) ([]Exam, error) {
	if err := s.authorize(actor, "exam:view"); err != nil {
		return nil, err
	}
	if s.authorize(actor, "exam:create") != nil {
		opts.Status = string(ExamActive)
	}
	return s.store.Read().ListExams(ctx, opts)
}

// GetExamAdmin returns the full exam including answer keys.
func (s *Service) GetExamAdmin(ctx context.Context, actor rbac.Identity, examID string) (Exam, error) {
	if err := s.authorize(actor, "exam:create"); err != nil {
		return Exam{}, err
	}
	r := s.store.Read()
	e, err := r.GetExam(ctx, examID)
	if err != nil {
		return Exam{}, err
	}
	if e.Questions, err = r.Questions(ctx, examID); err != nil {
		return Exam{}, err
	}
	return e, nil
}

// ListAttempts scopes callers without attempt:view-all to their own attempts.
func (s *Service) ListAttempts(ctx context.Context, actor rbac.Identity, opts AttemptListOpts) ([]Attempt, error) {
	if s.authorize(actor, "attempt:view-all") != nil {
		if err := s.authorize(actor, "attempt:view-own"); err != nil {
			return nil, err
		}
		opts.UserID = actor.Subject
	}
	return s.store.Read().ListAttempts(ctx, opts)
}

// GetResult is the owner's view of their latest attempt. Per-answer verdicts
// stay hidden until the exam's results are published.
func (s *Service) GetResult(ctx context.Context, userID, examID string) (Result, error) {
	r := s.store.Read()
	e, err := r.GetExam(ctx, examID)
	if err != nil {
		return Result{}, err
	}
	a, err := r.LatestAttempt(ctx, userID, examID)
	if err != nil {
		return Result{}, err
	}
	answers, err := r.Answers(ctx, a.ID)
	if err != nil {
		return Result{}, err
	}
	res := Result{Exam: e, Attempt: a, Published: e.ResultsPublished}
	if !e.ResultsPublished {
		res.Attempt.TotalScore = 0
		for i := range answers {
			answers[i].Grade, answers[i].ScoreAwarded, answers[i].Remarks = Ungraded, 0, ""
		}
	} else {
		res.Passed = a.TotalScore >= e.PassingMarks
	}
	res.Answers = answers
	return res, nil
}
