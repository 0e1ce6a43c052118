package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sofmeright/stagehand/src/output"
	"github.com/sofmeright/stagehand/src/step"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List registered steps and their effective supervision settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		color := output.UseColor()
		sec := output.NewSection(os.Stdout, "Steps", 0, color)
		for _, name := range step.All() {
			s, err := step.Get(name)
			if err != nil {
				return err
			}
			spec := step.ResolveSpec(s, cfg.StepFor(name))
			sec.Row("%-18s %s", output.Bold(name, color), s.Description())
			sec.Row("%-18s attempts=%s timeout=%s no_output=%s", "",
				strconv.Itoa(spec.Attempts), boundString(spec.Timeout), boundString(spec.NoOutputTimeout))
		}
		sec.Close()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stepsCmd)
}
