package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Redeliverer is satisfied by *notify.Syncer.
type Redeliverer interface {
	Redeliver(ctx context.Context) (int, error)
}

// NoticeRedelivery retries result notices whose last delivery failed.
type NoticeRedelivery struct {
	notices Redeliverer
	log     logrus.FieldLogger
	timeout time.Duration
}

func NewNoticeRedelivery(notices Redeliverer, log logrus.FieldLogger, timeout time.Duration) *NoticeRedelivery {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &NoticeRedelivery{notices: notices, log: log.WithField("job", "notice_redelivery"), timeout: timeout}
}

// Run performs one pass and returns the number of notices delivered.
func (j *NoticeRedelivery) Run(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	n, err := j.notices.Redeliver(ctx)
	if err != nil {
		j.log.WithError(err).WithField("delivered", n).Warn("redelivery incomplete")
		return n
	}
	if n > 0 {
		j.log.WithField("delivered", n).Info("notices redelivered")
	}
	return n
}
