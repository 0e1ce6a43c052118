package output

import (
	"bytes"
	"encoding/xml"
	"os"
	"strings"
	"testing"
	"time"
)

func TestSectionFraming(t *testing.T) {
	var buf bytes.Buffer
	sec := NewSection(&buf, "render_pictures", 1500*time.Millisecond, false)
	sec.Field("attempt", "1/3")
	sec.Separator()
	RowStatus(sec, "attempt 1", "no_output", StatusTimedOut, false)
	sec.Close()

	out := buf.String()
	for _, want := range []string{"── render_pictures ", " 1.5s ──", "│ attempt       1/3", "attempt 1 · no_output ⏱", "└───"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestStatusIconPlain(t *testing.T) {
	tests := map[string]string{
		StatusSucceeded: "✓",
		StatusFailed:    "✗",
		StatusTimedOut:  "⏱",
		StatusRetrying:  "↻",
		"unknown":       "⊘",
	}
	for status, want := range tests {
		if got := StatusIcon(status, false); got != want {
			t.Errorf("StatusIcon(%q) = %q, want %q", status, got, want)
		}
	}
	if got := StatusIcon(StatusSucceeded, true); !strings.HasPrefix(got, colorGreen) {
		t.Errorf("colored icon = %q", got)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Microsecond, "<1ms"},
		{250 * time.Millisecond, "250ms"},
		{12300 * time.Millisecond, "12.3s"},
		{2*time.Minute + 3*time.Second, "2m3.0s"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.d); got != tt.want {
			t.Errorf("FormatElapsed(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestWriteAttemptsJUnit(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteAttemptsJUnit(dir, "compile", []AttemptCase{
		{Attempt: 1, RunID: "r1", Status: StatusTimedOut, Cause: "no_output", Message: "no output for 5m0s", Duration: time.Minute},
		{Attempt: 2, RunID: "r2", Status: StatusFailed, Cause: "failure", Message: "make: exit status 2", Duration: time.Second},
	}, 61*time.Second)
	if err != nil {
		t.Fatalf("WriteAttemptsJUnit: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got JUnitTestSuites
	if err := xml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Tests != 2 || got.Failures != 1 {
		t.Fatalf("totals = %d tests %d failures", got.Tests, got.Failures)
	}
	cases := got.Suites[0].Cases
	if cases[0].Failure != nil || !strings.Contains(cases[0].Name, "retried after no_output") {
		t.Errorf("first case = %+v", cases[0])
	}
	if cases[1].Failure == nil || cases[1].Failure.Type != "failure" {
		t.Errorf("last case = %+v", cases[1])
	}
}
