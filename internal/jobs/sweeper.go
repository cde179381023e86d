// Package jobs holds the background schedules the daemon runs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Issuer is satisfied by *exam.Service.
type Issuer interface {
	IssueEligibleCertificates(ctx context.Context) (int, error)
}

type SweepConfig struct {
	Schedule       string // certificate sweep, standard 5-field cron spec; empty disables it
	NoticeSchedule string // failed result notice redelivery; empty disables it
	Timeout        time.Duration
}

// CertificateSweep mints every certificate the publication gate allows.
type CertificateSweep struct {
	issuer  Issuer
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewCertificateSweep(issuer Issuer, log logrus.FieldLogger, timeout time.Duration) *CertificateSweep {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CertificateSweep{issuer: issuer, log: log.WithField("job", "certificate_sweep"), timeout: timeout}
}

// Run performs one sweep and returns the number of certificates issued.
func (s *CertificateSweep) Run(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	n, err := s.issuer.IssueEligibleCertificates(ctx)
	if err != nil {
		s.log.WithError(err).Error("sweep failed")
		return 0
	}
	s.log.WithFields(logrus.Fields{"issued": n, "took": time.Since(start).String()}).Debug("sweep done")
	return n
}

// Start schedules the certificate sweep and, when notices is set, the
// redelivery of failed result notices, then starts the scheduler. The caller
// stops it with the returned cron's Stop. A nil cron means both are disabled.
func Start(cfg SweepConfig, issuer Issuer, notices Redeliverer, log logrus.FieldLogger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	scheduled := 0
	if cfg.Schedule == "" {
		log.Info("certificate sweep disabled")
	} else {
		sweep := NewCertificateSweep(issuer, log, cfg.Timeout)
		if _, err := c.AddFunc(cfg.Schedule, func() { sweep.Run(context.Background()) }); err != nil {
			return nil, fmt.Errorf("certificate sweep: %w", err)
		}
		log.WithField("schedule", cfg.Schedule).Info("certificate sweep scheduled")
		scheduled++
	}
	if cfg.NoticeSchedule == "" || notices == nil {
		log.Info("notice redelivery disabled")
	} else {
		redeliver := NewNoticeRedelivery(notices, log, cfg.Timeout)
		if _, err := c.AddFunc(cfg.NoticeSchedule, func() { redeliver.Run(context.Background()) }); err != nil {
			return nil, fmt.Errorf("notice redelivery: %w", err)
		}
		log.WithField("schedule", cfg.NoticeSchedule).Info("notice redelivery scheduled")
		scheduled++
	}
	if scheduled == 0 {
		return nil, nil
	}
	c.Start()
	return c, nil
}
