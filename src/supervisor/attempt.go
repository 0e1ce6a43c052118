package supervisor

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Attempt is the handle a unit of work receives for one attempt. Any write
// to Output, or a call to Touch, counts as progress for the no-output bound.
type Attempt struct {
	Number int
	RunID  string

	lastOutput atomic.Int64 // unix nanoseconds
	sink       io.Writer
	mu         sync.Mutex
}

func newAttempt(number int, id string, start time.Time, sink io.Writer) *Attempt {
	a := &Attempt{Number: number, RunID: id, sink: sink}
	a.lastOutput.Store(start.UnixNano())
	return a
}

// Touch records progress without producing output.
func (a *Attempt) Touch() { a.lastOutput.Store(time.Now().UnixNano()) }

// LastOutput returns the time of the most recent progress.
func (a *Attempt) LastOutput() time.Time { return time.Unix(0, a.lastOutput.Load()) }

// Output returns a writer that records progress and forwards to the
// supervisor's output sink, if any.
func (a *Attempt) Output() io.Writer { return attemptWriter{a} }

type attemptWriter struct{ a *Attempt }

func (w attemptWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.a.Touch()
	}
	if w.a.sink == nil {
		return len(p), nil
	}
	w.a.mu.Lock()
	defer w.a.mu.Unlock()
	// A broken sink must not break the supervised command's pipes.
	_, _ = w.a.sink.Write(p)
	return len(p), nil
}
