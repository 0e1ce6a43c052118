package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sofmeright/stagehand/src/config"
	"github.com/sofmeright/stagehand/src/history"
	"github.com/sofmeright/stagehand/src/output"
	"github.com/sofmeright/stagehand/src/step"
	"github.com/sofmeright/stagehand/src/supervisor"
)

var (
	runArgs          []string
	runAttempts      int
	runTimeout       time.Duration
	runNoOutput      time.Duration
	runSerial        string
	runHasRoot       bool
	runWorkDir       string
	runConfiguration string
	runDestStorage   string
	runUpload        bool
	runJUnit         string
	runNoHistory     bool
	runDryRun        bool
)

var runCmd = &cobra.Command{
	Use:   "run <step>",
	Short: "Run a build step under supervision",
	Long: `Run one registered build step under supervision.

Supervision settings resolve in order: step defaults, the config "step"
section, "steps.<name>", then command-line flags. A zero timeout disables
that bound.

Exits non-zero unless the step succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVarP(&runArgs, "arg", "a", nil, "step argument key=value (repeatable)")
	f.IntVar(&runAttempts, "attempts", 0, "maximum attempts")
	f.DurationVar(&runTimeout, "timeout", 0, "overall timeout per attempt (0 disables)")
	f.DurationVar(&runNoOutput, "no-output-timeout", 0, "no-output timeout per attempt (0 disables)")
	f.StringVar(&runSerial, "serial", "", "device serial; selects the device flavor")
	f.BoolVar(&runHasRoot, "has-root", false, "device has root access")
	f.StringVar(&runWorkDir, "workdir", "", "working directory (default: current directory)")
	f.StringVar(&runConfiguration, "configuration", "", "build configuration, e.g. Debug or Release")
	f.StringVar(&runDestStorage, "dest-storage", "", "storage base, e.g. gs://bucket or file:///srv/cache")
	f.BoolVar(&runUpload, "upload", false, "upload results")
	f.StringVar(&runJUnit, "junit", "", "write a JUnit report of attempts into this directory")
	f.BoolVar(&runNoHistory, "no-history", false, "do not record attempts in the history database")
	f.BoolVar(&runDryRun, "dry-run", false, "resolve and print the step setup without running it")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := step.Get(args[0])
	if err != nil {
		return err
	}
	stepArgs, err := step.ParseArgs(runArgs)
	if err != nil {
		return err
	}

	// Dedicated flags win over --arg.
	flags := cmd.Flags()
	if flags.Changed("serial") {
		stepArgs[step.ArgSerial] = runSerial
	}
	if flags.Changed("has-root") {
		stepArgs[step.ArgHasRoot] = strconv.FormatBool(runHasRoot)
	}
	if flags.Changed("configuration") {
		stepArgs[step.ArgConfiguration] = runConfiguration
	}
	if flags.Changed("dest-storage") {
		stepArgs[step.ArgDestStorage] = runDestStorage
	}
	if flags.Changed("upload") {
		stepArgs[step.ArgDoUploadResults] = strconv.FormatBool(runUpload)
	}

	var override config.StepConfig
	if flags.Changed("attempts") {
		override.Attempts = &runAttempts
	}
	if flags.Changed("timeout") {
		override.Timeout = config.Ptr(runTimeout)
	}
	if flags.Changed("no-output-timeout") {
		override.NoOutputTimeout = config.Ptr(runNoOutput)
	}
	spec := step.ResolveSpec(s, cfg.StepFor(s.Name()), override)

	color := output.UseColor()
	env, err := step.NewEnv(cfg, stepArgs, step.EnvOptions{
		WorkDir: runWorkDir,
		Log:     logger,
		Out:     os.Stdout,
		Color:   color,
	})
	if err != nil {
		return err
	}

	if runDryRun {
		return printPlan(s, env, spec, color)
	}

	opts := step.ExecOptions{JUnitDir: runJUnit}
	if !cfg.History.Disabled && !runNoHistory {
		store, err := history.Open(env.Path(cfg.History.Path))
		if err != nil {
			logger.Warn().Err(err).Msg("attempt history unavailable")
		} else {
			defer store.Close()
			opts.History = store
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if output.IsCI() {
		output.CIHeader(os.Stdout)
	}
	_, err = step.Execute(ctx, s, env, spec, opts)
	return err
}

func printPlan(s step.Step, env *step.Env, spec supervisor.Spec, color bool) error {
	sec := output.NewSection(os.Stdout, "Plan (dry run)", 0, color)
	sec.Field("step", s.Name())
	sec.Field("target", env.Flavor.Target().String())
	sec.Field("config", env.Configuration)
	sec.Field("storage", env.Base.URL())
	sec.Field("workdir", env.WorkDir)
	sec.Field("attempts", strconv.Itoa(spec.Attempts))
	sec.Field("timeout", boundString(spec.Timeout))
	sec.Field("no output", boundString(spec.NoOutputTimeout))
	if len(env.Args) > 0 {
		sec.Separator()
		for _, k := range env.Args.Keys() {
			sec.Row("%-14s %s", k, env.Args[k])
		}
	}
	sec.Close()
	return nil
}

func boundString(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}
