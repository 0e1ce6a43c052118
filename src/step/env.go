package step

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/artifactsync"
	"github.com/sofmeright/stagehand/src/config"
	"github.com/sofmeright/stagehand/src/flavor"
	"github.com/sofmeright/stagehand/src/revision"
	"github.com/sofmeright/stagehand/src/runner"
	"github.com/sofmeright/stagehand/src/storage"
)

// Env is everything a step needs to do its work. It is built once per
// execution and shared read-only by every attempt.
type Env struct {
	Args   Args
	Config *config.Config

	// Flavor performs target-dependent I/O; Host always addresses the
	// local machine, for directories that live on the build host
	// regardless of target.
	Flavor flavor.Flavor
	Host   flavor.Flavor

	Storage storage.Client
	Base    storage.Location
	Sync    *artifactsync.Engine
	Runner  runner.Runner

	Configuration string
	WorkDir       string
	Revision      string

	Log   zerolog.Logger
	Out   io.Writer
	Color bool
}

// EnvOptions are process-level inputs to NewEnv.
type EnvOptions struct {
	WorkDir string
	Runner  runner.Runner
	Log     zerolog.Logger
	Out     io.Writer
	Color   bool
}

// NewEnv resolves arguments against configuration and wires the flavor,
// storage client and sync engine for one step execution.
func NewEnv(cfg *config.Config, args Args, opts EnvOptions) (*Env, error) {
	if cfg == nil {
		return nil, fmt.Errorf("step: nil config")
	}
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workDir = wd
	}
	r := opts.Runner
	if r == nil {
		r = runner.NewExecRunner(opts.Log)
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	args = Args(cfg.Args).Merge(args)
	configuration := args.String(ArgConfiguration, "Debug")

	serial := args.String(ArgSerial, cfg.Device.Serial)
	hasRoot, err := args.Bool(ArgHasRoot, cfg.Device.HasRoot)
	if err != nil {
		return nil, err
	}
	target := flavor.HostTarget()
	if serial != "" {
		target = flavor.DeviceTarget(serial, hasRoot)
	}

	hostBin := filepath.Join(workDir, cfg.Compile.OutDir, configuration)
	fl, err := flavor.New(target, r, flavor.Options{
		HostBinDir:    hostBin,
		ADB:           cfg.Device.ADB,
		MinADBVersion: cfg.Device.MinADBVersion,
		DeviceBinDir:  cfg.Device.BinDir,
		AppPackage:    cfg.Device.AppPackage,
		AppActivity:   cfg.Device.AppActivity,
		IntentLog:     cfg.Device.IntentLog,
		StopShell:     cfg.Device.StopShell,
	}, opts.Log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	base := args.String(ArgDestStorage, cfg.Storage.Base)
	if base == "" {
		base = config.DefaultStorageBase
	}
	client, loc, err := storage.Open(base, storage.Options{
		GSUtilPath: cfg.Storage.GSUtil,
		BotoConfig: cfg.Storage.BotoConfig,
		MinVersion: cfg.Storage.MinVersion,
	}, r, opts.Log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}

	return &Env{
		Args:          args,
		Config:        cfg,
		Flavor:        fl,
		Host:          &flavor.Host{Runner: r, BinDir: hostBin, Log: opts.Log},
		Storage:       client,
		Base:          loc,
		Sync:          artifactsync.New(client, opts.Log),
		Runner:        r,
		Configuration: configuration,
		WorkDir:       workDir,
		Revision:      revision.Resolve(workDir, args.String(ArgRevision, "")),
		Log:           opts.Log,
		Out:           out,
		Color:         opts.Color,
	}, nil
}

// Path resolves p against the working directory unless it is absolute.
func (e *Env) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.WorkDir, p)
}

// OnDevice reports whether the step targets a remote device.
func (e *Env) OnDevice() bool {
	return e.Flavor.Target().Kind == flavor.KindDevice
}

// ACL returns the configured canned ACL for uploads.
func (e *Env) ACL() storage.ACL {
	if e.Config.Storage.ACL == "" {
		return storage.ACL(config.DefaultACL)
	}
	return storage.ACL(e.Config.Storage.ACL)
}
