package exam

import (
	"encoding/json"
	"time"
)

type ExamType string

const (
	ExamMock    ExamType = "mock"
	ExamRegular ExamType = "regular"
	ExamFinal   ExamType = "final"
)

type ExamStatus string

const (
	ExamDraft    ExamStatus = "draft"
	ExamActive   ExamStatus = "active"
	ExamInactive ExamStatus = "inactive"
)

type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionTrueFalse QuestionType = "truefalse"
	QuestionText      QuestionType = "text"
)

// AutoGradable reports whether answers can be graded without a human.
func (t QuestionType) AutoGradable() bool {
	return t == QuestionMCQ || t == QuestionTrueFalse
}

type Exam struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	DurationMin      int        `json:"duration"` // minutes
	TotalMarks       float64    `json:"total_marks"`
	PassingMarks     float64    `json:"passing_marks"`
	Type             ExamType   `json:"exam_type"`
	Status           ExamStatus `json:"status"`
	StartAt          time.Time  `json:"start_date"`
	EndAt            time.Time  `json:"end_date"`
	ResultsPublished bool       `json:"results_published"`
	ShuffleQuestions bool       `json:"shuffle_questions"`
	CreatedBy        string     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`

	Questions []Question `json:"questions,omitempty"`
}

// Duration is the attempt time budget.
func (e Exam) Duration() time.Duration { return time.Duration(e.DurationMin) * time.Minute }

// Available reports whether t falls inside the availability window.
func (e Exam) Available(t time.Time) bool {
	return !t.Before(e.StartAt) && !t.After(e.EndAt)
}

type Question struct {
	ID            string       `json:"id"`
	ExamID        string       `json:"exam_id"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"question_type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"` // stripped for students
	Marks         float64      `json:"marks"`
	OrderNumber   int          `json:"order_number"`
}

// AttemptStatus only moves forward: pending -> completed -> evaluated -> published.
type AttemptStatus string

const (
	StatusPending   AttemptStatus = "pending"
	StatusCompleted AttemptStatus = "completed"
	StatusEvaluated AttemptStatus = "evaluated"
	StatusPublished AttemptStatus = "published"
)

func (s AttemptStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusCompleted:
		return 1
	case StatusEvaluated:
		return 2
	case StatusPublished:
		return 3
	}
	return -1
}

// Advance returns next if it is ahead of s, otherwise s.
func (s AttemptStatus) Advance(next AttemptStatus) AttemptStatus {
	if next.Rank() > s.Rank() {
		return next
	}
	return s
}

type Attempt struct {
	ID          string        `json:"id"`
	ExamID      string        `json:"exam_id"`
	UserID      string        `json:"user_id"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	TotalScore  float64       `json:"total_score"`
	EvaluatedBy string        `json:"evaluated_by,omitempty"`
	Remarks     string        `json:"remarks,omitempty"`
}

// Submitted is true once the attempt has been handed in, even while it still
// waits for manual evaluation.
func (a Attempt) Submitted() bool { return a.SubmittedAt != nil }

// Open reports whether answers may still be written.
func (a Attempt) Open() bool { return a.Status == StatusPending && !a.Submitted() }

// Grade replaces the nullable is_correct column.
type Grade string

const (
	Ungraded  Grade = "ungraded"
	Correct   Grade = "correct"
	Incorrect Grade = "incorrect"
)

// GradeOf maps an evaluator's verdict onto a Grade.
func GradeOf(correct bool) Grade {
	if correct {
		return Correct
	}
	return Incorrect
}

// IsCorrect returns nil while ungraded.
func (g Grade) IsCorrect() *bool {
	switch g {
	case Correct:
		t := true
		return &t
	case Incorrect:
		f := false
		return &f
	}
	return nil
}

type Answer struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attempt_id"`
	QuestionID   string    `json:"question_id"`
	AnswerText   string    `json:"answer_text"`
	Grade        Grade     `json:"-"`
	ScoreAwarded float64   `json:"score_awarded"`
	EvaluatedBy  string    `json:"evaluated_by,omitempty"`
	Remarks      string    `json:"remarks,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	type plain Answer
	return json.Marshal(struct {
		plain
		IsCorrect *bool `json:"is_correct"`
	}{plain(a), a.Grade.IsCorrect()})
}

type Certificate struct {
	ID         string    `json:"id"`
	Serial     string    `json:"serial"`
	UserID     string    `json:"user_id"`
	ExamID     string    `json:"exam_id"`
	Score      float64   `json:"score"`
	Percentage float64   `json:"percentage"`
	IssuedAt   time.Time `json:"issued_at"`
}

// AnswerInput is one (question_id, answer_text) pair sent by a client.
type AnswerInput struct {
	QuestionID string `json:"question_id" validate:"required"`
	AnswerText string `json:"answer_text"`
}

type ProgressAck struct {
	AttemptID string    `json:"attempt_id"`
	Saved     int       `json:"saved"`
	SavedAt   time.Time `json:"saved_at"`
}

type SubmissionResult struct {
	AttemptID          string        `json:"attempt_id"`
	TotalScore         float64       `json:"total_score"`
	PassingMarks       float64       `json:"passing_marks"`
	Passed             bool          `json:"passed"`
	Status             AttemptStatus `json:"status"`
	AutoEvaluated      int           `json:"auto_evaluated"`
	TotalQuestions     int           `json:"total_questions"`
	AwaitingEvaluation bool          `json:"awaiting_evaluation"`
}

type EvaluationInput struct {
	IsCorrect    bool    `json:"is_correct"`
	ScoreAwarded float64 `json:"score_awarded" validate:"gte=0"`
	Remarks      string  `json:"remarks,omitempty" validate:"max=2000"`
}

type CertificateAvailability struct {
	ExamID           string  `json:"exam_id"`
	ExamTitle        string  `json:"exam_title"`
	Score            float64 `json:"score"`
	Percentage       float64 `json:"percentage"`
	Passed           bool    `json:"passed"`
	ResultsPublished bool    `json:"results_published"`
	Issued           bool    `json:"issued"`
	CanGenerate      bool    `json:"can_generate"`
}

// Result is the owner's view of one attempt.
type Result struct {
	Exam      Exam     `json:"exam"`
	Attempt   Attempt  `json:"attempt"`
	Passed    bool     `json:"passed"`
	Published bool     `json:"published"`
	Answers   []Answer `json:"answers"`
}

func percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return score * 100 / total
}
