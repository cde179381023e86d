package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultGrader(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()

	tests := []struct {
		name       string
		q          Q
		answer     string
		correct    bool
		points     float64
		needManual bool
	}{
		{name: "mcq exact", q: Q{Type: "mcq", Points: 5, CorrectAnswer: "A"}, answer: "A", correct: true, points: 5},
		{name: "mcq wrong", q: Q{Type: "mcq", Points: 5, CorrectAnswer: "A"}, answer: "B"},
		{name: "mcq is case sensitive", q: Q{Type: "mcq", Points: 5, CorrectAnswer: "Al-Fatiha"}, answer: "al-fatiha"},
		{name: "truefalse folds case", q: Q{Type: "truefalse", Points: 2, CorrectAnswer: "true"}, answer: "True", correct: true, points: 2},
		{name: "truefalse trims", q: Q{Type: "truefalse", Points: 2, CorrectAnswer: "false"}, answer: " FALSE ", correct: true, points: 2},
		{name: "truefalse wrong", q: Q{Type: "truefalse", Points: 2, CorrectAnswer: "false"}, answer: "true"},
		{name: "text is manual", q: Q{Type: "text", Points: 10}, answer: "an essay", needManual: true},
		{name: "unknown type is manual", q: Q{Type: "audio", Points: 3}, answer: "x", needManual: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(ctx, tc.q, tc.answer)
			require.NoError(t, err)
			require.Equal(t, tc.needManual, res.NeedsManual)
			require.Equal(t, tc.q.Points, res.MaxPoints)
			if !tc.needManual {
				require.Equal(t, tc.correct, res.Correct)
			}
			require.Equal(t, tc.points, res.AutoPoints)
		})
	}
}

type alwaysRight struct{}

func (alwaysRight) Grade(_ context.Context, q Q, _ string) (Result, error) {
	return Result{Correct: true, AutoPoints: q.Points, MaxPoints: q.Points}, nil
}

func TestWithStrategyOverrides(t *testing.T) {
	g := NewDefaultGrader(WithStrategy("text", alwaysRight{}))
	res, err := g.Grade(context.Background(), Q{Type: "text", Points: 4}, "anything")
	require.NoError(t, err)
	require.False(t, res.NeedsManual)
	require.Equal(t, 4.0, res.AutoPoints)
}
