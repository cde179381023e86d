package jobs

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type issuerFunc func(ctx context.Context) (int, error)

func (f issuerFunc) IssueEligibleCertificates(ctx context.Context) (int, error) { return f(ctx) }

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSweepRun(t *testing.T) {
	calls := 0
	s := NewCertificateSweep(issuerFunc(func(ctx context.Context) (int, error) {
		calls++
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		return 3, nil
	}), quiet(), 0)

	require.Equal(t, 3, s.Run(context.Background()))
	require.Equal(t, 1, calls)
}

func TestSweepRunError(t *testing.T) {
	s := NewCertificateSweep(issuerFunc(func(context.Context) (int, error) {
		return 2, errors.New("db down")
	}), quiet(), 0)
	require.Zero(t, s.Run(context.Background()))
}

type redelivererFunc func(ctx context.Context) (int, error)

func (f redelivererFunc) Redeliver(ctx context.Context) (int, error) { return f(ctx) }

func TestNoticeRedeliveryRun(t *testing.T) {
	j := NewNoticeRedelivery(redelivererFunc(func(ctx context.Context) (int, error) {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		return 2, nil
	}), quiet(), 0)
	require.Equal(t, 2, j.Run(context.Background()))

	partial := NewNoticeRedelivery(redelivererFunc(func(context.Context) (int, error) {
		return 1, errors.New("503")
	}), quiet(), 0)
	require.Equal(t, 1, partial.Run(context.Background()))
}

func TestStartDisabledAndInvalid(t *testing.T) {
	noop := issuerFunc(func(context.Context) (int, error) { return 0, nil })
	none := redelivererFunc(func(context.Context) (int, error) { return 0, nil })

	c, err := Start(SweepConfig{}, noop, none, quiet())
	require.NoError(t, err)
	require.Nil(t, c)

	c, err = Start(SweepConfig{NoticeSchedule: "*/5 * * * *"}, noop, nil, quiet())
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = Start(SweepConfig{Schedule: "every tuesday"}, noop, none, quiet())
	require.Error(t, err)
	_, err = Start(SweepConfig{Schedule: "*/5 * * * *", NoticeSchedule: "often"}, noop, none, quiet())
	require.Error(t, err)

	c, err = Start(SweepConfig{Schedule: "*/5 * * * *"}, noop, none, quiet())
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
	c.Stop()

	c, err = Start(SweepConfig{Schedule: "*/5 * * * *", NoticeSchedule: "*/10 * * * *"}, noop, none, quiet())
	require.NoError(t, err)
	require.Len(t, c.Entries(), 2)
	c.Stop()
}
