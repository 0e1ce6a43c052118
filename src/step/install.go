package step

import (
	"context"
	"path/filepath"

	"github.com/sofmeright/stagehand/src/flavor"
	"github.com/sofmeright/stagehand/src/supervisor"
)

func init() {
	Register("install", func() Step { return &installStep{} })
}

// installStep places built binaries where RunCommand expects them: pushed
// into the device binary directory, or the launcher APK on unrooted
// devices. Binaries missing from the host build directory are reported as
// warnings; on the host nothing else happens, since binaries run in place.
type installStep struct{}

func (i *installStep) Name() string        { return "install" }
func (i *installStep) Description() string { return "install built binaries onto the target" }

func (i *installStep) Defaults() Defaults {
	return Defaults{Attempts: 3, Timeout: DefaultTimeout, NoOutputTimeout: DefaultNoOutputTimeout}
}

func (i *installStep) Setup(context.Context, *Env) error { return nil }

func (i *installStep) Run(ctx context.Context, env *Env, _ *supervisor.Attempt) error {
	if err := env.Flavor.Preflight(ctx); err != nil {
		return err
	}
	hostBin := env.Path(filepath.Join(env.Config.Compile.OutDir, env.Configuration))
	for _, bin := range env.Config.Compile.Binaries {
		ok, err := env.Host.PathExists(ctx, env.Host.JoinPath(hostBin, bin))
		if err != nil {
			return err
		}
		if !ok {
			env.Log.Warn().Str("binary", bin).Str("dir", hostBin).Msg("binary not built")
		}
	}
	apk := env.Config.Device.APK
	if apk != "" {
		apk = env.Path(apk)
	}
	return env.Flavor.Install(ctx, flavor.InstallOptions{
		Configuration: env.Configuration,
		HostBinDir:    hostBin,
		Binaries:      env.Config.Compile.Binaries,
		APK:           apk,
	})
}
