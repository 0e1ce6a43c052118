// Package runner executes external commands with a bounded lifetime.
//
// Every host or device interaction in stagehand ends up here: gsutil for
// storage, adb for devices, make and the rendering binaries for the host.
// Output is captured and, when the context carries an output writer, streamed
// as it is produced so that supervisors can observe liveness.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to drain after
// the process has been killed.
const DefaultWaitDelay = 5 * time.Second

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current process environment. The process-wide
	// environment itself is never modified.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	Output   []byte // combined stdout and stderr
	ExitCode int
	Duration time.Duration
}

// Runner abstracts command execution so flavors and storage clients can be
// tested against in-memory fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Func adapts a plain function to the Runner interface.
type Func func(ctx context.Context, cmd Command) (*Result, error)

// Run calls f.
func (f Func) Run(ctx context.Context, cmd Command) (*Result, error) {
	return f(ctx, cmd)
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Output  []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
}

// ExecRunner runs commands on the local host via os/exec.
type ExecRunner struct {
	WaitDelay time.Duration
	Log       zerolog.Logger
}

// NewExecRunner creates an ExecRunner logging command lines at debug level.
func NewExecRunner(log zerolog.Logger) *ExecRunner {
	return &ExecRunner{WaitDelay: DefaultWaitDelay, Log: log}
}

// Run executes cmd and blocks until it exits or ctx is done. When ctx is
// cancelled the whole process group is killed, not merely abandoned.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	start := time.Now()
	r.Log.Debug().Str("cmd", cmd.String()).Str("dir", cmd.Dir).Msg("exec")

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.WaitDelay = r.WaitDelay
	if c.WaitDelay <= 0 {
		c.WaitDelay = DefaultWaitDelay
	}
	killProcessGroup(c)

	var buf bytes.Buffer
	var w io.Writer = &buf
	if out := OutputFrom(ctx); out != nil {
		w = io.MultiWriter(&buf, out)
	}
	c.Stdout = w
	c.Stderr = w

	err := c.Run()
	result := &Result{
		Output:   buf.Bytes(),
		Duration: time.Since(start),
	}
	if err == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s: killed: %w", cmd.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Command: cmd.String(), Code: result.ExitCode, Output: result.Output}
	}

	result.ExitCode = 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		result.ExitCode = 127
	}
	return result, fmt.Errorf("%s: %w", cmd.Name, err)
}

// LookPath reports whether an executable is resolvable on PATH.
func LookPath(name string) (string, bool) {
	p, err := exec.LookPath(name)
	return p, err == nil
}
