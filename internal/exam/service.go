package exam

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qhlc/qhlc-exams/internal/grading"
	"github.com/qhlc/qhlc-exams/internal/metrics"
	"github.com/qhlc/qhlc-exams/internal/rbac"
)

// PublishHook is told about an exam after its results were published and
// committed. Hooks run in the background on a context detached from the
// publishing request; errors are logged, never returned to the publisher.
type PublishHook interface {
	ResultsPublished(ctx context.Context, examID string) error
}

// Service owns the attempt lifecycle: start, autosave, submit, evaluate,
// publish and certificate issuance.
type Service struct {
	store    Store
	grader   grading.Grader
	log      logrus.FieldLogger
	now      func() time.Time
	newID    func() string
	validate *validator.Validate
	hooks    []PublishHook
	shuffle  func(n int, swap func(i, j int))

	hookTimeout time.Duration
	hookWG      sync.WaitGroup
}

type Option func(*Service)

func WithGrader(g grading.Grader) Option             { return func(s *Service) { s.grader = g } }
func WithLogger(l logrus.FieldLogger) Option         { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option          { return func(s *Service) { s.now = now } }
func WithIDs(newID func() string) Option             { return func(s *Service) { s.newID = newID } }
func WithPublishHook(h PublishHook) Option           { return func(s *Service) { s.hooks = append(s.hooks, h) } }
func WithShuffle(f func(int, func(i, j int))) Option { return func(s *Service) { s.shuffle = f } }
func WithHookTimeout(d time.Duration) Option         { return func(s *Service) { s.hookTimeout = d } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		grader:   grading.NewDefaultGrader(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
		newID:    uuid.NewString,
		validate: validator.New(),
		shuffle:  rand.Shuffle,

		hookTimeout: 5 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// authorize maps the shared policy check onto the domain error taxonomy.
func (s *Service) authorize(actor rbac.Identity, capability string) error {
	if err := rbac.Authorize(actor, capability); err != nil {
		return forbidden("missing_capability", "%s requires %s", actor.Role, capability)
	}
	return nil
}

// check validates v with struct tags and reports the first failing fields.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationErr("invalid_payload", "%v", err)
	}
	e := validationErr("invalid_payload", "%d field(s) failed validation", len(verrs))
	for _, fe := range verrs {
		e.with(fe.Field(), fe.Tag())
	}
	return e
}

// reject counts and logs domain rejections; infrastructure errors pass through.
func (s *Service) reject(op string, err error, fields logrus.Fields) error {
	var de *Error
	if errors.As(err, &de) {
		metrics.Rejections.WithLabelValues(op, de.Reason).Inc()
		s.log.WithFields(fields).WithField("reason", de.Reason).Info(op + " rejected")
		return err
	}
	s.log.WithFields(fields).WithError(err).Error(op + " failed")
	return err
}

// runHooks hands examID to every publish hook in a background goroutine.
func (s *Service) runHooks(ctx context.Context, examID string, fields logrus.Fields) {
	if len(s.hooks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hookTimeout)
	s.hookWG.Add(1)
	go func() {
		defer s.hookWG.Done()
		defer cancel()
		for _, h := range s.hooks {
			if err := h.ResultsPublished(ctx, examID); err != nil {
				s.log.WithFields(fields).WithError(err).Warn("publish hook failed")
			}
		}
	}()
}

// Drain blocks until every publish hook started so far has returned.
func (s *Service) Drain() { s.hookWG.Wait() }
