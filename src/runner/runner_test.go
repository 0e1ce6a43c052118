//go:build unix

package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())
	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello; echo oops 1>&2"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	out := string(res.Output)
	if !strings.Contains(out, "hello") || !strings.Contains(out, "oops") {
		t.Fatalf("expected combined output, got %q", out)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
}

func TestExecRunnerExitError(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())
	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 || res.ExitCode != 3 {
		t.Fatalf("exit code = %d / %d, want 3", exitErr.Code, res.ExitCode)
	}
}

func TestExecRunnerMissingExecutable(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())
	res, err := r.Run(context.Background(), Command{Name: "stagehand-definitely-missing"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.ExitCode != 127 {
		t.Fatalf("exit code = %d, want 127", res.ExitCode)
	}
}

func TestExecRunnerStreamsToContextWriter(t *testing.T) {
	var streamed bytes.Buffer
	ctx := WithOutput(context.Background(), &streamed)
	r := NewExecRunner(zerolog.Nop())
	if _, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo streamed"}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(streamed.String(), "streamed") {
		t.Fatalf("context writer got %q", streamed.String())
	}
}

func TestExecRunnerKillsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := NewExecRunner(zerolog.Nop())
	start := time.Now()
	_, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 10 & sleep 10"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("process group not killed promptly: %s", elapsed)
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "adb", Args: []string{"-s", "abc", "shell", "ls"}}
	if got := c.String(); got != "adb -s abc shell ls" {
		t.Fatalf("String() = %q", got)
	}
}
