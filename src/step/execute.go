package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sofmeright/stagehand/src/history"
	"github.com/sofmeright/stagehand/src/output"
	"github.com/sofmeright/stagehand/src/supervisor"
)

// Recorder persists finished attempts. *history.Store satisfies it.
type Recorder interface {
	Add(ctx context.Context, r history.Record) error
}

// ExecOptions are optional lifecycle hooks.
type ExecOptions struct {
	History  Recorder
	JUnitDir string
}

// OutcomeError is returned when a step ends in anything but success. It
// carries the terminal outcome so callers can distinguish causes.
type OutcomeError struct {
	Step    string
	Outcome *supervisor.Outcome
}

func (e *OutcomeError) Error() string {
	o := e.Outcome
	msg := fmt.Sprintf("step %s %s after %d attempt(s)", e.Step, o.Status, o.Attempts)
	if o.Cause != supervisor.CauseNone {
		msg += fmt.Sprintf(" (%s)", o.Cause)
	}
	if o.Err != nil {
		msg += ": " + o.Err.Error()
	}
	return msg
}

func (e *OutcomeError) Unwrap() error { return e.Outcome.Err }

// Execute runs the full step lifecycle and returns the terminal outcome.
// The error is non-nil for configuration errors and for any outcome other
// than success.
func Execute(ctx context.Context, s Step, env *Env, spec supervisor.Spec, opts ExecOptions) (*supervisor.Outcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	log := env.Log.With().Str("step", s.Name()).Logger()
	execution := uuid.NewString()
	start := time.Now()

	output.SectionStart(env.Out, "stagehand_"+s.Name(), "stagehand "+s.Name())
	defer output.SectionEnd(env.Out, "stagehand_"+s.Name())
	output.ContextBlock(env.Out, []output.KV{
		{Key: "step", Value: s.Name()},
		{Key: "target", Value: env.Flavor.Target().String()},
		{Key: "config", Value: env.Configuration},
		{Key: "storage", Value: env.Base.URL()},
		{Key: "attempts", Value: fmt.Sprint(spec.Attempts)},
		{Key: "revision", Value: shortRevision(env.Revision)},
	})

	if err := s.Setup(ctx, env); err != nil {
		log.Error().Err(err).Msg("setup failed")
		return nil, fmt.Errorf("%s setup: %w", s.Name(), err)
	}

	sup := supervisor.New(log)
	sup.Output = env.Out
	sup.Report = func(run *supervisor.Run, retry bool) {
		reportAttempt(env, spec, run, retry)
		if opts.History == nil {
			return
		}
		rec := history.Record{
			RunID:     run.ID,
			Execution: execution,
			Step:      s.Name(),
			Attempt:   run.Attempt,
			Target:    env.Flavor.Target().String(),
			Revision:  env.Revision,
			Status:    string(run.Status),
			Cause:     string(run.Cause),
			Start:     run.Start,
			End:       run.End,
		}
		if run.Err != nil {
			rec.Error = run.Err.Error()
		}
		if err := opts.History.Add(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn().Err(err).Msg("recording attempt history")
		}
	}

	out, err := sup.Run(ctx, spec, func(ctx context.Context, a *supervisor.Attempt) error {
		return s.Run(ctx, env, a)
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	summarize(env, s.Name(), out, elapsed)

	if opts.JUnitDir != "" {
		path, jerr := output.WriteAttemptsJUnit(opts.JUnitDir, s.Name(), attemptCases(out), elapsed)
		if jerr != nil {
			log.Warn().Err(jerr).Msg("writing junit report")
		} else {
			log.Debug().Str("path", path).Msg("junit report written")
		}
	}

	if !out.Succeeded() {
		return out, &OutcomeError{Step: s.Name(), Outcome: out}
	}
	return out, nil
}

func reportAttempt(env *Env, spec supervisor.Spec, run *supervisor.Run, retry bool) {
	sec := output.NewSection(env.Out, fmt.Sprintf("attempt %d/%d", run.Attempt, spec.Attempts), run.Duration(), env.Color)
	sec.Field("run", run.ID)
	sec.Field("status", string(run.Status)+" "+output.StatusIcon(string(run.Status), env.Color))
	if run.Cause != supervisor.CauseNone {
		sec.Field("cause", string(run.Cause))
	}
	if run.Err != nil {
		sec.Field("error", run.Err.Error())
	}
	if retry {
		sec.Field("next", output.StatusIcon(output.StatusRetrying, env.Color)+" retrying")
	}
	sec.Close()
}

func summarize(env *Env, name string, out *supervisor.Outcome, elapsed time.Duration) {
	sec := output.NewSection(env.Out, "summary", 0, env.Color)
	for _, run := range out.Runs {
		detail := output.FormatElapsed(run.Duration())
		if run.Cause != supervisor.CauseNone {
			detail += " " + output.Dimmed(string(run.Cause), env.Color)
		}
		output.SummaryRow(env.Out, fmt.Sprintf("attempt %d", run.Attempt), string(run.Status), detail, env.Color)
	}
	sec.Separator()
	output.SummaryTotal(env.Out, elapsed, string(out.Status), env.Color)
	sec.Close()
}

func attemptCases(out *supervisor.Outcome) []output.AttemptCase {
	cases := make([]output.AttemptCase, 0, len(out.Runs))
	for _, run := range out.Runs {
		c := output.AttemptCase{
			Attempt:  run.Attempt,
			RunID:    run.ID,
			Status:   string(run.Status),
			Cause:    string(run.Cause),
			Duration: run.Duration(),
		}
		if run.Err != nil {
			c.Message = run.Err.Error()
		}
		cases = append(cases, c)
	}
	return cases
}

func shortRevision(rev string) string {
	if rev == "" {
		return "-"
	}
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// IsConfigError reports whether err is a configuration error: one that
// fails before any attempt and is never retried.
func IsConfigError(err error) bool {
	return errors.Is(err, supervisor.ErrInvalidSpec) || errors.Is(err, ErrInvalidArgs)
}
