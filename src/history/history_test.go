package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sofmeright/stagehand/src/config"
	"github.com/sofmeright/stagehand/src/retention"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC)

func rec(exec, step string, attempt int, offset time.Duration, status string) Record {
	start := base.Add(offset)
	return Record{
		RunID:     exec + "-" + string(rune('0'+attempt)),
		Execution: exec,
		Step:      step,
		Attempt:   attempt,
		Target:    "host",
		Status:    status,
		Start:     start,
		End:       start.Add(time.Minute),
	}
}

func TestAddListGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	failed := rec("e1", "render_pictures", 1, 0, "timed_out")
	failed.Cause = "no_output"
	failed.Error = "no output for 5m0s"
	for _, r := range []Record{failed, rec("e1", "render_pictures", 2, 2*time.Minute, "succeeded"), rec("e2", "compile", 1, time.Hour, "succeeded")} {
		if err := s.Add(ctx, r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.RunID)
	}
	if diff := cmp.Diff([]string{"e2-1", "e1-2", "e1-1"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	got, err := s.Get(ctx, "e1-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(failed, got, cmpTimes); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v", err)
	}

	render, _ := s.List(ctx, Filter{Step: "render_pictures", Limit: 1})
	if len(render) != 1 || render[0].RunID != "e1-2" {
		t.Errorf("filtered list = %+v", render)
	}
	steps, _ := s.Steps(ctx)
	if diff := cmp.Diff([]string{"compile", "render_pictures"}, steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

var cmpTimes = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func TestRetentionPrunesWholeExecutions(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	for i, exec := range []string{"old", "mid", "new"} {
		off := time.Duration(i) * 24 * time.Hour
		s.Add(ctx, rec(exec, "compile", 1, off, "failed"))
		s.Add(ctx, rec(exec, "compile", 2, off+time.Minute, "succeeded"))
	}
	s.Add(ctx, rec("other", "install", 1, 0, "succeeded"))

	res, err := retention.Apply(ctx, s.Executions("compile"), config.RetentionPolicy{KeepLast: 2})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if diff := cmp.Diff([]string{"old"}, res.Deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	left, _ := s.List(ctx, Filter{Execution: "old"})
	if len(left) != 0 {
		t.Errorf("attempts of pruned execution remain: %v", left)
	}
	install, _ := s.List(ctx, Filter{Step: "install"})
	if len(install) != 1 {
		t.Error("other steps must not be pruned")
	}
}
