package step

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/sofmeright/stagehand/src/imagecheck"
	"github.com/sofmeright/stagehand/src/supervisor"
)

// skpTimeoutMultiplier stretches the default timeout: there can be many
// pictures whose images all have to be rendered and uploaded.
const skpTimeoutMultiplier = 5

func init() {
	Register("render_pictures", func() Step { return &renderStep{} })
}

// renderStep renders recorded webpage pictures and publishes the images.
//
// Pictures are synced down from storage, rendered on the target in tile
// mode, and pulled back. When storage has no baseline yet, this run's
// output becomes the baseline; otherwise the baseline is synced down next
// to the actual images. With uploads enabled, actual images (and a new
// baseline, if one was seeded) are synced up with fresh markers.
type renderStep struct {
	subdir         string
	tileX, tileY   int
	upload         bool
	expectedExists bool
}

func (r *renderStep) Name() string { return "render_pictures" }
func (r *renderStep) Description() string {
	return "render webpage pictures and upload gm-actual images"
}

func (r *renderStep) Defaults() Defaults {
	return Defaults{
		Attempts:        1,
		Timeout:         DefaultTimeout * skpTimeoutMultiplier,
		NoOutputTimeout: DefaultNoOutputTimeout,
	}
}

func (r *renderStep) Setup(ctx context.Context, env *Env) error {
	rc := env.Config.Render
	r.subdir = env.Args.String(ArgGMImageSubdir, "")
	if r.subdir == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgs, ArgGMImageSubdir)
	}
	var err error
	if r.tileX, err = env.Args.Int(ArgTileX, rc.TileX); err != nil {
		return err
	}
	if r.tileY, err = env.Args.Int(ArgTileY, rc.TileY); err != nil {
		return err
	}
	if r.tileX <= 0 || r.tileY <= 0 {
		return fmt.Errorf("%w: tile size must be positive, got %dx%d", ErrInvalidArgs, r.tileX, r.tileY)
	}
	if r.upload, err = env.Args.Bool(ArgDoUploadResults, false); err != nil {
		return err
	}

	// Whether a baseline exists is decided once; every attempt must make
	// the same seed-or-sync choice.
	expected := env.Base.Join(r.storageDirs(env).GmExpectedDir())
	if r.expectedExists, err = env.Storage.Exists(ctx, expected); err != nil {
		return fmt.Errorf("probing %s: %w", expected, err)
	}
	env.Log.Debug().Str("expected", expected.URL()).Bool("exists", r.expectedExists).Msg("baseline lookup")
	return nil
}

func (r *renderStep) localDirs(env *Env) PlaybackDirs {
	return PlaybackDirs{Root: env.Path(env.Config.Render.PlaybackRoot), Subdir: r.subdir, Join: filepath.Join}
}

func (r *renderStep) storageDirs(env *Env) PlaybackDirs {
	return PlaybackDirs{Root: env.Config.Render.StorageDir, Subdir: r.subdir, Join: path.Join}
}

func (r *renderStep) deviceDirs(env *Env) PlaybackDirs {
	return PlaybackDirs{Root: env.Config.Device.PlaybackRoot, Subdir: r.subdir, Join: env.Flavor.JoinPath}
}

func (r *renderStep) Run(ctx context.Context, env *Env, a *supervisor.Attempt) error {
	local, remote := r.localDirs(env), r.storageDirs(env)
	say := func(msg string) { fmt.Fprintf(a.Output(), "\n===== %s =====\n\n", msg) }

	if err := os.MkdirAll(local.SkpDir(), 0o755); err != nil {
		return err
	}
	if err := env.Host.CreateCleanDirectory(ctx, local.GmActualDir()); err != nil {
		return err
	}

	say("Syncing skps")
	copied, err := env.Sync.SyncDown(ctx, env.Base.Join(remote.SkpDir()), local.SkpDir())
	if err != nil {
		return fmt.Errorf("downloading skps: %w", err)
	}
	env.Log.Info().Bool("downloaded", copied).Str("dir", local.SkpDir()).Msg("skps ready")

	skpDir, outDir := local.SkpDir(), local.GmActualDir()
	if env.OnDevice() {
		dev := r.deviceDirs(env)
		if err := env.Flavor.CopyDirectoryContentsToDevice(ctx, local.SkpDir(), dev.SkpDir()); err != nil {
			return err
		}
		if err := env.Flavor.CreateCleanDirectory(ctx, dev.GmActualDir()); err != nil {
			return err
		}
		skpDir, outDir = dev.SkpDir(), dev.GmActualDir()
	}

	say("Rendering Pictures")
	if _, err := env.Flavor.RunCommand(ctx, env.Config.Render.Binary, r.renderArgs(env, skpDir, outDir)); err != nil {
		return err
	}
	if env.OnDevice() {
		if err := env.Flavor.CopyDirectoryContentsToHost(ctx, outDir, local.GmActualDir()); err != nil {
			return err
		}
	}

	if env.Config.Render.VerifyImages {
		report, err := imagecheck.Verify(local.GmActualDir())
		if err != nil {
			return err
		}
		env.Log.Info().Int("images", len(report.Images)).Msg("rendered images verified")
	}

	if !r.expectedExists {
		say("Copying gm-actual to gm-expected locally")
		if err := env.Host.CopyDirectoryContentsToHost(ctx, local.GmActualDir(), local.GmExpectedDir()); err != nil {
			return err
		}
	} else {
		say("Syncing gm-expected")
		if _, err := env.Sync.SyncDown(ctx, env.Base.Join(remote.GmExpectedDir()), local.GmExpectedDir()); err != nil {
			return fmt.Errorf("downloading gm-expected: %w", err)
		}
	}

	if !r.upload {
		return nil
	}
	say("Uploading gm-actual")
	if _, err := env.Sync.SyncUp(ctx, local.GmActualDir(), env.Base.Join(remote.GmActualDir()), env.ACL()); err != nil {
		return fmt.Errorf("uploading gm-actual: %w", err)
	}
	if !r.expectedExists {
		say("Uploading gm-expected")
		if _, err := env.Sync.SyncUp(ctx, local.GmExpectedDir(), env.Base.Join(remote.GmExpectedDir()), env.ACL()); err != nil {
			return fmt.Errorf("uploading gm-expected: %w", err)
		}
	}
	return nil
}

func (r *renderStep) renderArgs(env *Env, skpDir, outDir string) []string {
	return []string{
		skpDir,
		"--device", env.Config.Render.Device,
		"--mode", "tile", strconv.Itoa(r.tileX), strconv.Itoa(r.tileY),
		"-w", outDir,
	}
}
