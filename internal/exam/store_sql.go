package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qhlc/qhlc-exams/internal/db"
	syncx "github.com/qhlc/qhlc-exams/internal/sync"
)

type SQLStore struct {
	db     *sql.DB
	events *syncx.EventRepo
}

func NewSQLStore(dbh *sql.DB, events *syncx.EventRepo) *SQLStore {
	if events == nil {
		events = syncx.NewEventRepo("", nil)
	}
	return &SQLStore{db: dbh, events: events}
}

func (s *SQLStore) Read() Repo { return &sqlRepo{q: s.db, events: s.events} }

func (s *SQLStore) InTx(ctx context.Context, fn func(Repo) error) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&sqlRepo{q: tx, events: s.events})
	})
}

type sqlRepo struct {
	q      db.Querier
	events *syncx.EventRepo
}

/* ----------------------------------- exams ----------------------------------- */

const examCols = `id,title,duration_min,total_marks,passing_marks,exam_type,status,start_at,end_at,
	results_published,shuffle_questions,created_by,created_at`

func scanExam(row interface{ Scan(...any) error }) (Exam, error) {
	var e Exam
	var start, end, created int64
	err := row.Scan(&e.ID, &e.Title, &e.DurationMin, &e.TotalMarks, &e.PassingMarks, &e.Type, &e.Status,
		&start, &end, &e.ResultsPublished, &e.ShuffleQuestions, &e.CreatedBy, &created)
	if err != nil {
		return Exam{}, err
	}
	e.StartAt, e.EndAt, e.CreatedAt = time.Unix(start, 0), time.Unix(end, 0), time.Unix(created, 0)
	return e, nil
}

func (r *sqlRepo) GetExam(ctx context.Context, id string) (Exam, error) {
	e, err := scanExam(r.q.QueryRowContext(ctx, `SELECT `+examCols+` FROM exams WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, notFound("exam_not_found", "exam %s", id)
	}
	return e, err
}

func (r *sqlRepo) ListExams(ctx context.Context, opts ExamListOpts) ([]Exam, error) {
	var where []string
	var args []any
	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if opts.Q != "" {
		args = append(args, "%"+strings.ToLower(opts.Q)+"%")
		where = append(where, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}
	q := `SELECT ` + examCols + ` FROM exams`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)
	q += fmt.Sprintf(` ORDER BY start_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *sqlRepo) InsertExam(ctx context.Context, e Exam) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO exams (`+examCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.Title, e.DurationMin, e.TotalMarks, e.PassingMarks, string(e.Type), string(e.Status),
		e.StartAt.Unix(), e.EndAt.Unix(), e.ResultsPublished, e.ShuffleQuestions, e.CreatedBy, e.CreatedAt.Unix())
	return err
}

func (r *sqlRepo) SetExamStatus(ctx context.Context, id string, st ExamStatus) error {
	_, err := r.q.ExecContext(ctx, `UPDATE exams SET status=$1 WHERE id=$2`, string(st), id)
	return err
}

func (r *sqlRepo) MarkResultsPublished(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE exams SET results_published=$1 WHERE id=$2`, true, id)
	return err
}

/* --------------------------------- questions --------------------------------- */

func (r *sqlRepo) InsertQuestion(ctx context.Context, q Question) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO questions
		(id,exam_id,question_text,question_type,options_json,correct_answer,marks,order_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		q.ID, q.ExamID, q.Text, string(q.Type), string(opts), q.CorrectAnswer, q.Marks, q.OrderNumber)
	return err
}

func (r *sqlRepo) Questions(ctx context.Context, examID string) ([]Question, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id,exam_id,question_text,question_type,options_json,correct_answer,marks,order_number
		FROM questions WHERE exam_id=$1 ORDER BY order_number, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		var opts string
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &opts, &q.CorrectAnswer, &q.Marks, &q.OrderNumber); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

/* ---------------------------------- attempts ---------------------------------- */

const attemptCols = `id,exam_id,user_id,status,started_at,submitted_at,total_score,evaluated_by,remarks`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var started int64
	var submitted sql.NullInt64
	if err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Status, &started, &submitted, &a.TotalScore, &a.EvaluatedBy, &a.Remarks); err != nil {
		return Attempt{}, err
	}
	a.StartedAt = time.Unix(started, 0)
	if submitted.Valid {
		t := time.Unix(submitted.Int64, 0)
		a.SubmittedAt = &t
	}
	return a, nil
}

func collectAttempts(rows *sql.Rows, err error) ([]Attempt, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *sqlRepo) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(r.q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("attempt_not_found", "attempt %s", id)
	}
	return a, err
}

// LatestAttempt prefers the open attempt, then the most recently started one.
func (r *sqlRepo) LatestAttempt(ctx context.Context, userID, examID string) (Attempt, error) {
	a, err := scanAttempt(r.q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE user_id=$1 AND exam_id=$2
		ORDER BY CASE WHEN submitted_at IS NULL THEN 0 ELSE 1 END, started_at DESC
		LIMIT 1`, userID, examID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("attempt_not_found", "no attempt for exam %s", examID)
	}
	return a, err
}

// FindPendingAttempt returns the user's pending attempt on examID, including
// one that was submitted and waits for an evaluator.
func (r *sqlRepo) FindPendingAttempt(ctx context.Context, userID, examID string) (Attempt, bool, error) {
	a, err := scanAttempt(r.q.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE user_id=$1 AND exam_id=$2 AND status='pending'`, userID, examID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, false, nil
	}
	if err != nil {
		return Attempt{}, false, err
	}
	return a, true, nil
}

// InsertAttempt reports false when another pending attempt for the same
// (user, exam) already holds the attempts_one_pending index.
func (r *sqlRepo) InsertAttempt(ctx context.Context, a Attempt) (bool, error) {
	res, err := r.q.ExecContext(ctx, `INSERT INTO attempts (id,exam_id,user_id,status,started_at,total_score,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT DO NOTHING`,
		a.ID, a.ExamID, a.UserID, string(a.Status), a.StartedAt.Unix(), a.TotalScore, a.StartedAt.Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// TouchOpenAttempt is a conditional write that also takes the row lock, so a
// concurrent submission either waits for us or makes us see 0 rows.
func (r *sqlRepo) TouchOpenAttempt(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.affected(ctx, `UPDATE attempts SET updated_at=$1
		WHERE id=$2 AND status='pending' AND submitted_at IS NULL`, now.Unix(), id)
}

// ClaimSubmission is the compare-and-swap that lets exactly one submit win.
func (r *sqlRepo) ClaimSubmission(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.affected(ctx, `UPDATE attempts SET submitted_at=$1, updated_at=$1
		WHERE id=$2 AND status='pending' AND submitted_at IS NULL`, now.Unix(), id)
}

func (r *sqlRepo) UpdateAttemptScore(ctx context.Context, a Attempt, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE attempts SET total_score=$1, status=$2, evaluated_by=$3, remarks=$4, updated_at=$5
		WHERE id=$6`, a.TotalScore, string(a.Status), a.EvaluatedBy, a.Remarks, now.Unix(), a.ID)
	return err
}

func (r *sqlRepo) PublishAttempts(ctx context.Context, examID string, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE attempts SET status='published', notify_status='pending', updated_at=$1
		WHERE exam_id=$2 AND status IN ('completed','evaluated')`, now.Unix(), examID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sqlRepo) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.ExamID != "" {
		add("exam_id=$%d", opts.ExamID)
	}
	if opts.UserID != "" {
		add("user_id=$%d", opts.UserID)
	}
	if opts.Status != "" {
		add("status=$%d", opts.Status)
	}
	q := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, opts.Offset)
	q += fmt.Sprintf(` ORDER BY started_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return collectAttempts(r.q.QueryContext(ctx, q, args...))
}

// GradedAttempts returns every attempt of the user that has left the
// in-progress stage.
func (r *sqlRepo) GradedAttempts(ctx context.Context, userID string) ([]Attempt, error) {
	return collectAttempts(r.q.QueryContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE user_id=$1 AND status IN ('completed','evaluated','published')
		ORDER BY started_at`, userID))
}

// PublishedAttempts lists published attempts whose result notice has not
// been delivered yet.
func (r *sqlRepo) PublishedAttempts(ctx context.Context, examID string) ([]Attempt, error) {
	return collectAttempts(r.q.QueryContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE exam_id=$1 AND status='published' AND notify_status<>'ok' ORDER BY started_at`, examID))
}

// FailedNotices lists published attempts whose last result notice failed.
func (r *sqlRepo) FailedNotices(ctx context.Context) ([]Attempt, error) {
	return collectAttempts(r.q.QueryContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE status='published' AND notify_status='failed' ORDER BY exam_id, started_at`))
}

func (r *sqlRepo) MarkNotify(ctx context.Context, attemptID, status, lastErr string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE attempts SET notify_status=$1, notify_error=$2 WHERE id=$3`,
		status, lastErr, attemptID)
	return err
}

func (r *sqlRepo) affected(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

/* ----------------------------------- answers ----------------------------------- */

const answerCols = `id,attempt_id,question_id,answer_text,grade,score_awarded,evaluated_by,remarks,updated_at`

const answerColsQualified = `a.id,a.attempt_id,a.question_id,a.answer_text,a.grade,a.score_awarded,a.evaluated_by,a.remarks,a.updated_at`

func scanAnswer(row interface{ Scan(...any) error }) (Answer, error) {
	var a Answer
	var updated int64
	if err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.AnswerText, &a.Grade, &a.ScoreAwarded,
		&a.EvaluatedBy, &a.Remarks, &updated); err != nil {
		return Answer{}, err
	}
	a.UpdatedAt = time.Unix(updated, 0)
	return a, nil
}

// UpsertAnswer writes answer text only; an overwritten answer loses any
// earlier grade because it has to be graded again.
func (r *sqlRepo) UpsertAnswer(ctx context.Context, a Answer) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO answers (`+answerCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		  answer_text=excluded.answer_text,
		  grade=excluded.grade,
		  score_awarded=excluded.score_awarded,
		  updated_at=excluded.updated_at`,
		a.ID, a.AttemptID, a.QuestionID, a.AnswerText, string(a.Grade), a.ScoreAwarded, a.EvaluatedBy, a.Remarks,
		a.UpdatedAt.Unix())
	return err
}

func (r *sqlRepo) GetAnswer(ctx context.Context, id string) (Answer, error) {
	a, err := scanAnswer(r.q.QueryRowContext(ctx, `SELECT `+answerCols+` FROM answers WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Answer{}, notFound("answer_not_found", "answer %s", id)
	}
	return a, err
}

func (r *sqlRepo) Answers(ctx context.Context, attemptID string) ([]Answer, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+answerColsQualified+` FROM answers a
		LEFT JOIN questions q ON q.id = a.question_id
		WHERE a.attempt_id=$1 ORDER BY COALESCE(q.order_number, 0), a.question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *sqlRepo) UpdateAnswerGrade(ctx context.Context, a Answer) error {
	_, err := r.q.ExecContext(ctx, `UPDATE answers SET grade=$1, score_awarded=$2, evaluated_by=$3, remarks=$4, updated_at=$5
		WHERE id=$6`, string(a.Grade), a.ScoreAwarded, a.EvaluatedBy, a.Remarks, a.UpdatedAt.Unix(), a.ID)
	return err
}

/* -------------------------------- certificates -------------------------------- */

const certCols = `id,serial,user_id,exam_id,score,percentage,issued_at`

func scanCertificate(row interface{ Scan(...any) error }) (Certificate, error) {
	var c Certificate
	var issued int64
	if err := row.Scan(&c.ID, &c.Serial, &c.UserID, &c.ExamID, &c.Score, &c.Percentage, &issued); err != nil {
		return Certificate{}, err
	}
	c.IssuedAt = time.Unix(issued, 0)
	return c, nil
}

func (r *sqlRepo) GetCertificate(ctx context.Context, userID, examID string) (Certificate, bool, error) {
	c, err := scanCertificate(r.q.QueryRowContext(ctx, `SELECT `+certCols+` FROM certificates
		WHERE user_id=$1 AND exam_id=$2`, userID, examID))
	if errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, false, nil
	}
	if err != nil {
		return Certificate{}, false, err
	}
	return c, true, nil
}

// InsertCertificate reports false if the (user, exam) pair already has one.
func (r *sqlRepo) InsertCertificate(ctx context.Context, c Certificate) (bool, error) {
	return r.affected(ctx, `INSERT INTO certificates (`+certCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT DO NOTHING`,
		c.ID, c.Serial, c.UserID, c.ExamID, c.Score, c.Percentage, c.IssuedAt.Unix())
}

func (r *sqlRepo) CertificatesForUser(ctx context.Context, userID string) ([]Certificate, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+certCols+` FROM certificates WHERE user_id=$1 ORDER BY issued_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UncertifiedPassingAttempts lists published, passing attempts on published
// exams whose (user, exam) pair has no certificate yet.
func (r *sqlRepo) UncertifiedPassingAttempts(ctx context.Context) ([]Attempt, error) {
	q := `SELECT a.id,a.exam_id,a.user_id,a.status,a.started_at,a.submitted_at,a.total_score,a.evaluated_by,a.remarks
		FROM attempts a
		JOIN exams e ON e.id = a.exam_id
		WHERE e.results_published = $1
		  AND a.status = 'published'
		  AND a.total_score >= e.passing_marks
		  AND NOT EXISTS (SELECT 1 FROM certificates c WHERE c.user_id = a.user_id AND c.exam_id = a.exam_id)
		ORDER BY a.started_at`
	return collectAttempts(r.q.QueryContext(ctx, q, true))
}

/* ----------------------------------- events ----------------------------------- */

func (r *sqlRepo) AppendEvent(ctx context.Context, typ, key string, data any) error {
	return r.events.Append(ctx, r.q, typ, key, data)
}
