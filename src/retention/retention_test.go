package retention

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sofmeright/stagehand/src/config"
)

type memStore struct {
	items   []Item
	deleted []string
	failOn  string
}

func (m *memStore) List(context.Context) ([]Item, error) {
	return append([]Item(nil), m.items...), nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	if name == m.failOn {
		return errors.New("locked")
	}
	m.deleted = append(m.deleted, name)
	return nil
}

func day(d int, hour int) time.Time {
	return time.Date(2026, time.March, d, hour, 0, 0, 0, time.UTC)
}

func TestApplyKeepLast(t *testing.T) {
	s := &memStore{items: []Item{
		{"a", day(1, 1)}, {"c", day(3, 1)}, {"b", day(2, 1)}, {"d", day(4, 1)},
	}}
	res, err := Apply(context.Background(), s, config.RetentionPolicy{KeepLast: 2})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	sort.Strings(s.deleted)
	if diff := cmp.Diff([]string{"a", "b"}, s.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	if res.Matched != 4 || res.Kept != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestApplyDailyKeepsNewestPerDay(t *testing.T) {
	s := &memStore{items: []Item{
		{"d1-early", day(1, 1)}, {"d1-late", day(1, 20)},
		{"d2-early", day(2, 2)}, {"d2-late", day(2, 22)},
		{"d3", day(3, 5)},
	}}
	_, err := Apply(context.Background(), s, config.RetentionPolicy{KeepDaily: 2})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	sort.Strings(s.deleted)
	if diff := cmp.Diff([]string{"d1-early", "d1-late", "d2-early"}, s.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanDeletesNothing(t *testing.T) {
	s := &memStore{items: []Item{{"old", day(1, 0)}, {"new", day(9, 0)}}}
	res, doomed, err := Plan(context.Background(), s, config.RetentionPolicy{KeepLast: 1})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(s.deleted) != 0 {
		t.Fatal("Plan must not delete")
	}
	if len(doomed) != 1 || doomed[0].Name != "old" || res.Deleted[0] != "old" {
		t.Errorf("doomed = %v", doomed)
	}
}

func TestApplyRecordsDeleteErrors(t *testing.T) {
	s := &memStore{items: []Item{{"x", day(1, 0)}, {"y", day(2, 0)}, {"z", day(3, 0)}}, failOn: "x"}
	res, err := Apply(context.Background(), s, config.RetentionPolicy{KeepLast: 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Errors) != 1 || len(res.Deleted) != 1 || res.Deleted[0] != "y" {
		t.Errorf("result = %+v", res)
	}
}

func TestApplyRequiresPolicy(t *testing.T) {
	if _, err := Apply(context.Background(), &memStore{}, config.RetentionPolicy{}); err == nil {
		t.Fatal("inactive policy should error")
	}
}

func TestTruncateToWeek(t *testing.T) {
	sunday := time.Date(2026, time.March, 8, 15, 0, 0, 0, time.UTC)
	want := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	if got := TruncateToWeek(sunday); !got.Equal(want) {
		t.Errorf("TruncateToWeek(%s) = %s, want %s", sunday, got, want)
	}
}
