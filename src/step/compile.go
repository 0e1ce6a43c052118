package step

import (
	"context"

	"github.com/sofmeright/stagehand/src/flavor"
	"github.com/sofmeright/stagehand/src/supervisor"
)

func init() {
	Register("compile", func() Step { return &compileStep{} })
}

// compileStep builds targets with the external build tool through the
// flavor, which picks the host or cross-compile invocation.
type compileStep struct{}

func (c *compileStep) Name() string        { return "compile" }
func (c *compileStep) Description() string { return "build targets for the configured flavor" }

func (c *compileStep) Defaults() Defaults {
	return Defaults{Attempts: 2, Timeout: 3 * DefaultTimeout, NoOutputTimeout: DefaultNoOutputTimeout}
}

func (c *compileStep) Setup(context.Context, *Env) error { return nil }

func (c *compileStep) Run(ctx context.Context, env *Env, _ *supervisor.Attempt) error {
	return env.Flavor.Compile(ctx, compileOptions(env))
}

// compileOptions builds a fresh option set, environment included, for each
// invocation.
func compileOptions(env *Env) flavor.CompileOptions {
	cc := env.Config.Compile
	botoConfig := env.Config.Storage.BotoConfig
	if botoConfig != "" {
		botoConfig = env.Path(botoConfig)
	}
	toolDir := cc.ToolDir
	if toolDir != "" {
		toolDir = env.Path(toolDir)
	}
	return flavor.CompileOptions{
		Target:           env.Args.String(ArgTarget, cc.Target),
		Configuration:    env.Configuration,
		Device:           cc.Device,
		DefaultMakeFlags: cc.DefaultMakeFlags,
		MakeFlags:        append(append([]string(nil), cc.MakeFlags...), env.Args.Fields(ArgMakeFlags)...),
		Dir:              env.WorkDir,
		UseCCache:        cc.CCache,
		Env: flavor.BuildEnv{
			ToolDir:    toolDir,
			BotoConfig: botoConfig,
			SDKRoot:    cc.SDKRoot,
			GypDefines: cc.GypDefines,
		},
	}
}
