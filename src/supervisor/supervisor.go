// Package supervisor runs a unit of work up to a configured number of
// attempts, bounding each attempt by an overall timeout and a no-output
// timeout, and reports exactly one terminal outcome.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sofmeright/stagehand/src/runner"
)

// Spec is the immutable configuration of one supervised invocation.
// A zero Timeout or NoOutputTimeout disables that bound.
type Spec struct {
	Name            string
	Attempts        int
	Timeout         time.Duration
	NoOutputTimeout time.Duration
}

// Validate returns an ErrInvalidSpec error for unusable settings.
func (s Spec) Validate() error {
	if s.Attempts < 1 {
		return fmt.Errorf("%w: attempts must be at least 1, got %d", ErrInvalidSpec, s.Attempts)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidSpec, s.Timeout)
	}
	if s.NoOutputTimeout < 0 {
		return fmt.Errorf("%w: negative no-output timeout %s", ErrInvalidSpec, s.NoOutputTimeout)
	}
	return nil
}

// Status is the terminal outcome of an attempt or of the whole step.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Run is the record of one attempt.
type Run struct {
	ID         string
	Step       string
	Attempt    int
	Start      time.Time
	End        time.Time
	LastOutput time.Time
	Status     Status
	Cause      Cause
	Err        error
}

// Duration is the wall-clock length of the attempt.
func (r *Run) Duration() time.Duration { return r.End.Sub(r.Start) }

// Outcome is the terminal result of a supervised step. Cause and Err are
// those of the last attempt.
type Outcome struct {
	Status   Status
	Cause    Cause
	Err      error
	Attempts int
	Runs     []*Run
	Trace    []State
}

// Succeeded reports whether the step completed successfully.
func (o *Outcome) Succeeded() bool { return o.Status == StatusSucceeded }

// Work is one attempt of a step. It must return once ctx is done. The
// context carries the attempt's output writer (see runner.OutputFrom), so
// commands run through a runner report progress automatically.
type Work func(ctx context.Context, a *Attempt) error

// Supervisor drives attempts. The zero value is usable.
type Supervisor struct {
	Log zerolog.Logger
	// Output receives everything the work writes, for display.
	Output io.Writer
	// Report is called with every finished attempt before any retry starts.
	Report func(run *Run, willRetry bool)
}

// New returns a Supervisor logging to log.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{Log: log}
}

// Run executes work up to spec.Attempts times. It returns an error only for
// an invalid spec; attempt failures are described by the Outcome. Attempts
// run strictly one after another: the next one starts only after the
// previous work function has returned and its watchdog has stopped.
func (s *Supervisor) Run(ctx context.Context, spec Spec, work Work) (*Outcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	log := s.Log.With().Str("step", spec.Name).Logger()
	m := newMachine()
	out := &Outcome{}

	for n := 1; n <= spec.Attempts; n++ {
		if n > 1 {
			if err := m.transition(StateRetrying); err != nil {
				return nil, err
			}
		}
		if err := m.transition(StateRunning); err != nil {
			return nil, err
		}

		run := s.attempt(ctx, spec, n, work, log)
		out.Runs = append(out.Runs, run)
		out.Attempts = n
		out.Status, out.Cause, out.Err = run.Status, run.Cause, run.Err

		if err := m.transition(stateFor(run.Status)); err != nil {
			return nil, err
		}

		retry := run.Status != StatusSucceeded && n < spec.Attempts && run.Cause != CauseCancelled
		s.report(log, run, retry)
		if !retry {
			break
		}
	}

	if err := m.transition(StateIdle); err != nil {
		return nil, err
	}
	out.Trace = m.trace
	return out, nil
}

func (s *Supervisor) attempt(ctx context.Context, spec Spec, n int, work Work, log zerolog.Logger) *Run {
	run := &Run{ID: uuid.NewString(), Step: spec.Name, Attempt: n, Start: time.Now()}
	a := newAttempt(n, run.ID, run.Start, s.Output)
	log.Info().Int("attempt", n).Int("of", spec.Attempts).Str("run", run.ID).Msg("attempt started")

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		return work(runner.WithOutput(gctx, a.Output()), a)
	})
	g.Go(func() error {
		return watch(gctx, done, a, spec)
	})
	err := g.Wait()

	run.End = time.Now()
	run.LastOutput = a.LastOutput()
	run.Err = err

	var te *TimeoutError
	switch {
	case err == nil:
		run.Status = StatusSucceeded
	case errors.As(err, &te):
		run.Status, run.Cause = StatusTimedOut, te.Cause
	case ctx.Err() != nil:
		run.Status, run.Cause = StatusFailed, CauseCancelled
	default:
		run.Status, run.Cause = StatusFailed, CauseFailure
	}
	return run
}

// watch enforces both time bounds until the work finishes. Returning a
// TimeoutError cancels the group context, which terminates the work.
func watch(ctx context.Context, done <-chan struct{}, a *Attempt, spec Spec) error {
	var overall, idle <-chan time.Time
	if spec.Timeout > 0 {
		t := time.NewTimer(spec.Timeout)
		defer t.Stop()
		overall = t.C
	}
	var idleTimer *time.Timer
	if spec.NoOutputTimeout > 0 {
		idleTimer = time.NewTimer(spec.NoOutputTimeout)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-overall:
			if finished(done) {
				return nil
			}
			return &TimeoutError{Cause: CauseTimeout, Limit: spec.Timeout}
		case <-idle:
			if finished(done) {
				return nil
			}
			silent := time.Since(a.LastOutput())
			if silent >= spec.NoOutputTimeout {
				return &TimeoutError{Cause: CauseNoOutput, Limit: spec.NoOutputTimeout}
			}
			idleTimer.Reset(spec.NoOutputTimeout - silent)
		}
	}
}

func finished(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func stateFor(s Status) State {
	switch s {
	case StatusSucceeded:
		return StateSucceeded
	case StatusTimedOut:
		return StateTimedOut
	default:
		return StateFailed
	}
}

func (s *Supervisor) report(log zerolog.Logger, run *Run, retry bool) {
	ev := log.Info()
	if run.Status != StatusSucceeded {
		ev = log.Warn().Err(run.Err).Str("cause", string(run.Cause))
	}
	ev.Int("attempt", run.Attempt).
		Str("run", run.ID).
		Str("status", string(run.Status)).
		Dur("elapsed", run.Duration()).
		Bool("retry", retry).
		Msg("attempt finished")
	if s.Report != nil {
		s.Report(run, retry)
	}
}
