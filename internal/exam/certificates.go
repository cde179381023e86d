package exam

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/metrics"
	syncx "github.com/qhlc/qhlc-exams/internal/sync"
)

// bestAttempts keeps the highest scoring graded attempt per exam.
func bestAttempts(attempts []Attempt) map[string]Attempt {
	best := map[string]Attempt{}
	for _, a := range attempts {
		if cur, ok := best[a.ExamID]; !ok || a.TotalScore > cur.TotalScore {
			best[a.ExamID] = a
		}
	}
	return best
}

// GetAvailableCertificates projects the caller's graded attempts onto the
// publication gate. Attempts still waiting for an evaluator are not listed.
func (s *Service) GetAvailableCertificates(ctx context.Context, userID string) ([]CertificateAvailability, error) {
	r := s.store.Read()
	attempts, err := r.GradedAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}
	certs, err := r.CertificatesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	issued := make(map[string]bool, len(certs))
	for _, c := range certs {
		issued[c.ExamID] = true
	}

	best := bestAttempts(attempts)
	out := make([]CertificateAvailability, 0, len(best))
	// keep first-attempt order for a stable listing
	for _, a := range attempts {
		b, ok := best[a.ExamID]
		if !ok || b.ID != a.ID {
			continue
		}
		e, err := r.GetExam(ctx, a.ExamID)
		if err != nil {
			return nil, err
		}
		passed := a.TotalScore >= e.PassingMarks
		out = append(out, CertificateAvailability{
			ExamID:           e.ID,
			ExamTitle:        e.Title,
			Score:            a.TotalScore,
			Percentage:       percentage(a.TotalScore, e.TotalMarks),
			Passed:           passed,
			ResultsPublished: e.ResultsPublished,
			Issued:           issued[e.ID],
			CanGenerate:      e.ResultsPublished && passed && !issued[e.ID],
		})
	}
	return out, nil
}

func newSerial(examType ExamType) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("QHLC-%s-%s", strings.ToUpper(string(examType)), id[:12])
}

// IssueCertificate mints the certificate for (userID, examID) if the gate
// allows it, or returns the one already issued.
func (s *Service) IssueCertificate(ctx context.Context, userID, examID string) (Certificate, error) {
	fields := logrus.Fields{"user_id": userID, "exam_id": examID}
	var (
		out   Certificate
		fresh bool
	)
	err := s.store.InTx(ctx, func(r Repo) error {
		e, err := r.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		if c, ok, err := r.GetCertificate(ctx, userID, examID); err != nil {
			return err
		} else if ok {
			out = c
			return nil
		}
		if !e.ResultsPublished {
			return invalidState("results_not_published", "results for exam %s are not published", examID)
		}
		graded, err := r.GradedAttempts(ctx, userID)
		if err != nil {
			return err
		}
		a, ok := bestAttempts(graded)[examID]
		if !ok {
			return notFound("attempt_not_found", "no graded attempt for exam %s", examID)
		}
		if a.TotalScore < e.PassingMarks {
			return invalidState("not_passed", "score below passing marks").
				with("total_score", a.TotalScore).with("passing_marks", e.PassingMarks)
		}

		c := Certificate{
			ID:         s.newID(),
			Serial:     newSerial(e.Type),
			UserID:     userID,
			ExamID:     examID,
			Score:      a.TotalScore,
			Percentage: percentage(a.TotalScore, e.TotalMarks),
			IssuedAt:   s.now(),
		}
		inserted, err := r.InsertCertificate(ctx, c)
		if err != nil {
			return fmt.Errorf("insert certificate: %w", err)
		}
		if !inserted {
			existing, _, err := r.GetCertificate(ctx, userID, examID)
			out = existing
			return err
		}
		out, fresh = c, true
		return r.AppendEvent(ctx, syncx.CertificateIssued, c.ID, map[string]any{
			"user_id": userID, "exam_id": examID, "serial": c.Serial, "score": c.Score,
		})
	})
	if err != nil {
		return Certificate{}, s.reject("issue_certificate", err, fields)
	}
	if fresh {
		metrics.CertificatesIssued.Inc()
		s.log.WithFields(fields).WithField("serial", out.Serial).Info("certificate issued")
	}
	return out, nil
}

// IssueEligibleCertificates issues every certificate the gate currently
// allows for published attempts and returns how many were issued. One failing
// pair does not stop the batch.
func (s *Service) IssueEligibleCertificates(ctx context.Context) (int, error) {
	pending, err := s.store.Read().UncertifiedPassingAttempts(ctx)
	if err != nil {
		return 0, err
	}
	seen := map[string]bool{}
	n := 0
	for _, a := range pending {
		k := a.UserID + "|" + a.ExamID
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, err := s.IssueCertificate(ctx, a.UserID, a.ExamID); err != nil {
			continue
		}
		n++
	}
	return n, nil
}
