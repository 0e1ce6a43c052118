package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSpec reports a configuration error. It is never retried.
var ErrInvalidSpec = errors.New("invalid step spec")

// Cause distinguishes why an attempt did not succeed.
type Cause string

const (
	CauseNone      Cause = ""
	CauseFailure   Cause = "failure"
	CauseTimeout   Cause = "timeout"
	CauseNoOutput  Cause = "no_output"
	CauseCancelled Cause = "cancelled"
)

// TimeoutError is returned when the watchdog terminates an attempt.
type TimeoutError struct {
	Cause Cause // CauseTimeout or CauseNoOutput
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Cause == CauseNoOutput {
		return fmt.Sprintf("no output for %s", e.Limit)
	}
	return fmt.Sprintf("exceeded timeout of %s", e.Limit)
}
