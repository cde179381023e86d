package syncx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qhlc/qhlc-exams/internal/db"
)

// Event types recorded by the exam lifecycle.
const (
	AttemptStarted    = "attempt.started"
	AttemptSubmitted  = "attempt.submitted"
	AnswerEvaluated   = "answer.evaluated"
	AttemptsFinalized = "attempts.evaluated"
	ResultsPublished  = "results.published"
	CertificateIssued = "certificate.issued"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct {
	siteID string
	now    func() time.Time
}

func NewEventRepo(siteID string, now func() time.Time) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	if now == nil {
		now = time.Now
	}
	return &EventRepo{siteID: siteID, now: now}
}

// Append writes one event using q, so callers can log inside their own
// transaction.
func (r *EventRepo) Append(ctx context.Context, q db.Querier, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("event %s: %w", typ, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(buf), r.now().Unix())
	return err
}

// List returns events for key in insertion order.
func (r *EventRepo) List(ctx context.Context, q db.Querier, key string) ([]Event, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
