package grading

import (
	"context"
	"strings"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type          string
	Points        float64
	CorrectAnswer string
}

// Result is the outcome of grading a single answer.
type Result struct {
	Correct     bool     // meaningless when NeedsManual
	AutoPoints  float64  // points awarded automatically
	MaxPoints   float64  // the question's max points
	NeedsManual bool     // true if an evaluator has to grade it
	Feedback    []string // optional notes
}

// Strategy grades a single question type.
type Strategy interface {
	Grade(ctx context.Context, q Q, answer string) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, answer string) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, answer string) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	return s.Grade(ctx, q, answer)
}

type Option func(*config)

type config struct {
	strategies map[string]Strategy
}

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(typ string, s Strategy) Option {
	return func(c *config) { c.strategies[typ] = s }
}

// NewDefaultGrader installs built-in strategies for mcq, truefalse and text.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{strategies: map[string]Strategy{
		"mcq":       exactStrategy{},
		"truefalse": foldStrategy{},
		"text":      manualStrategy{},
	}}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{strategies: cfg.strategies}
}

// --- Strategies ---

// exactStrategy is case-sensitive: option labels are compared verbatim.
type exactStrategy struct{}

func (exactStrategy) Grade(_ context.Context, q Q, answer string) (Result, error) {
	return award(q, answer == q.CorrectAnswer), nil
}

// foldStrategy accepts "True", "true" and " TRUE " alike.
type foldStrategy struct{}

func (foldStrategy) Grade(_ context.Context, q Q, answer string) (Result, error) {
	return award(q, strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))), nil
}

type manualStrategy struct{}

func (manualStrategy) Grade(_ context.Context, q Q, _ string) (Result, error) {
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

func award(q Q, ok bool) Result {
	res := Result{MaxPoints: q.Points, Correct: ok}
	if ok {
		res.AutoPoints = q.Points
	}
	return res
}
