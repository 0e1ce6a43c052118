// Package retention implements a restic-style retention engine over any
// named, timestamped items; stagehand uses it to prune step executions from
// the attempt history. Policies are additive: an item survives if ANY rule
// wants to keep it.
package retention

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sofmeright/stagehand/src/config"
)

// Item is a named, timestamped entity that can be pruned.
type Item struct {
	Name      string
	CreatedAt time.Time
}

// Result captures what the retention engine did (or would do, for a plan).
type Result struct {
	Matched int      // items considered
	Kept    int      // items kept by policy
	Deleted []string // items deleted, or selected for deletion by Plan
	Errors  []error  // errors from individual deletes
}

// Store lists and deletes items.
type Store interface {
	List(ctx context.Context) ([]Item, error)
	Delete(ctx context.Context, name string) error
}

// Plan lists the store and decides which items the policy would delete
// without deleting anything.
func Plan(ctx context.Context, store Store, policy config.RetentionPolicy) (*Result, []Item, error) {
	if !policy.Active() {
		return nil, nil, fmt.Errorf("retention: no active policy (all values zero)")
	}
	items, err := store.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("retention: listing items: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	keep := ApplyPolicies(items, policy)

	result := &Result{Matched: len(items)}
	var doomed []Item
	for i, item := range items {
		if keep[i] {
			result.Kept++
			continue
		}
		doomed = append(doomed, item)
		result.Deleted = append(result.Deleted, item.Name)
	}
	return result, doomed, nil
}

// Apply plans and then deletes every item the policy does not keep. A
// failed delete is recorded and does not stop the others.
func Apply(ctx context.Context, store Store, policy config.RetentionPolicy) (*Result, error) {
	plan, doomed, err := Plan(ctx, store, policy)
	if err != nil {
		return plan, err
	}
	result := &Result{Matched: plan.Matched, Kept: plan.Kept}
	for _, item := range doomed {
		if err := store.Delete(ctx, item.Name); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("deleting %s: %w", item.Name, err))
			continue
		}
		result.Deleted = append(result.Deleted, item.Name)
	}
	return result, nil
}

// ApplyPolicies returns a keep decision for each candidate. candidates must
// be sorted newest-first.
func ApplyPolicies(candidates []Item, policy config.RetentionPolicy) []bool {
	keep := make([]bool, len(candidates))
	for i := 0; i < len(candidates) && i < policy.KeepLast; i++ {
		keep[i] = true
	}
	buckets := []struct {
		n  int
		fn BucketFn
	}{
		{policy.KeepDaily, TruncateToDay},
		{policy.KeepWeekly, TruncateToWeek},
		{policy.KeepMonthly, TruncateToMonth},
		{policy.KeepYearly, TruncateToYear},
	}
	for _, b := range buckets {
		if b.n > 0 {
			ApplyTimeBucket(candidates, keep, b.n, b.fn)
		}
	}
	return keep
}

// BucketFn truncates a time to the start of its bucket period.
type BucketFn func(time.Time) time.Time

// ApplyTimeBucket keeps the newest item in each of the last count distinct
// buckets. candidates must be sorted newest-first.
func ApplyTimeBucket(candidates []Item, keep []bool, count int, bucket BucketFn) {
	seen := make(map[time.Time]bool)
	for i, item := range candidates {
		if item.CreatedAt.IsZero() {
			continue
		}
		key := bucket(item.CreatedAt)
		if seen[key] {
			continue
		}
		seen[key] = true
		keep[i] = true
		if len(seen) >= count {
			return
		}
	}
}

// TruncateToDay truncates a time to the start of its day.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TruncateToWeek truncates a time to the Monday starting its ISO week.
func TruncateToWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	d := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// TruncateToMonth truncates a time to the first day of its month.
func TruncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// TruncateToYear truncates a time to the first day of its year.
func TruncateToYear(t time.Time) time.Time {
	return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
}
