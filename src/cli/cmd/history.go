package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/stagehand/src/config"
	"github.com/sofmeright/stagehand/src/history"
	"github.com/sofmeright/stagehand/src/output"
	"github.com/sofmeright/stagehand/src/retention"
)

var (
	histStep      string
	histExecution string
	histLimit     int
	histDryRun    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and prune the attempt history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded attempts, newest first",
	RunE:  runHistoryList,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune old step executions using the retention policy",
	Long: `Delete old step executions from the history database using
history.retention from .stagehand.yml. Every attempt of a pruned execution
is removed together.

history.steps limits which steps are pruned (regex, ! negates).

Use --dry-run to preview what would be deleted without deleting.`,
	RunE: runHistoryPrune,
}

func init() {
	historyListCmd.Flags().StringVar(&histStep, "step", "", "only this step")
	historyListCmd.Flags().StringVar(&histExecution, "execution", "", "only attempts of this execution")
	historyListCmd.Flags().IntVar(&histLimit, "limit", 50, "maximum records")
	historyPruneCmd.Flags().BoolVar(&histDryRun, "dry-run", false, "show what would be deleted without deleting")

	historyCmd.AddCommand(historyListCmd, historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	if cfg.History.Path == "" {
		return nil, fmt.Errorf("history.path is empty")
	}
	return history.Open(cfg.History.Path)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(context.Background(), history.Filter{Step: histStep, Execution: histExecution, Limit: histLimit})
	if err != nil {
		return err
	}
	color := output.UseColor()
	sec := output.NewSection(os.Stdout, "History", 0, color)
	if len(records) == 0 {
		sec.Row("no attempts recorded")
	}
	for _, r := range records {
		detail := fmt.Sprintf("#%d %s %s", r.Attempt, r.Start.Local().Format(time.DateTime), output.FormatElapsed(r.Duration()))
		if r.Cause != "" {
			detail += " " + output.Dimmed(r.Cause, color)
		}
		output.RowStatus(sec, r.Step, detail, r.Status, color)
		if verbose {
			sec.Row("    run=%s exec=%s target=%s", r.RunID, r.Execution, r.Target)
			if r.Error != "" {
				sec.Row("    %s", r.Error)
			}
		}
	}
	sec.Close()
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	policy := cfg.History.Retention
	if !policy.Active() {
		return fmt.Errorf("no retention policy configured in history.retention")
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	steps, err := store.Steps(ctx)
	if err != nil {
		return err
	}

	w := os.Stdout
	color := output.UseColor()
	title := "Retention"
	if histDryRun {
		title = "Retention (dry run)"
	}
	start := time.Now()
	output.SectionStart(w, "stagehand_retention", "Retention")
	defer output.SectionEnd(w, "stagehand_retention")

	var matched, kept, pruned int
	var rows []string
	for _, name := range steps {
		if !config.MatchPatterns(cfg.History.Steps, name) {
			continue
		}
		var result *retention.Result
		if histDryRun {
			result, _, err = retention.Plan(ctx, store.Executions(name), policy)
		} else {
			result, err = retention.Apply(ctx, store.Executions(name), policy)
		}
		if err != nil {
			return fmt.Errorf("retention %s: %w", name, err)
		}
		matched += result.Matched
		kept += result.Kept
		pruned += len(result.Deleted)
		for _, d := range result.Deleted {
			rows = append(rows, fmt.Sprintf("  - %s %s", name, d))
		}
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "error: %v\n", e)
		}
	}

	sec := output.NewSection(w, title, time.Since(start), color)
	sec.Row("%-16s%d", "executions", matched)
	sec.Row("%-16s%d", "kept", kept)
	sec.Row("%-16s%d", "pruned", pruned)
	for _, r := range rows {
		sec.Row("%s", r)
	}
	sec.Close()
	return nil
}
