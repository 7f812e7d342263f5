// Package pipeline runs an ordered list of fallible steps, undoing completed
// steps in reverse order when one fails.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Step is one unit of work. Compensate is optional and only runs when Run
// succeeded and a later step failed.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StepError wraps the error of the step that stopped the pipeline
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Run executes steps in order. On the first failure it runs the compensation
// of every completed step, newest first, and returns the original error.
// Compensation failures are logged and do not stop the remaining ones.
// A started pipeline is not cancellable; ctx is only passed through.
func Run(ctx context.Context, log *logrus.Entry, steps ...Step) error {
	done := make([]Step, 0, len(steps))
	for _, s := range steps {
		log.WithField("step", s.Name).Debug("pipeline step")
		if err := s.Run(ctx); err != nil {
			log.WithError(err).WithField("step", s.Name).Warn("pipeline step failed, compensating")
			compensate(ctx, log, done)
			return &StepError{Step: s.Name, Err: err}
		}
		done = append(done, s)
	}
	return nil
}

func compensate(ctx context.Context, log *logrus.Entry, done []Step) {
	// compensations must run even if the caller's context is already cancelled
	cctx := context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		s := done[i]
		if s.Compensate == nil {
			continue
		}
		if err := s.Compensate(cctx); err != nil {
			log.WithError(err).WithField("step", s.Name).Error("compensation failed")
		}
	}
}
