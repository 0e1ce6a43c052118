// Package flavor presents one I/O capability set to build steps regardless of
// where the work actually runs: on the local host, or on a remote device that
// is reachable only through a narrow shell channel (adb push/pull/shell).
//
// A Flavor is chosen once per step from a Target and never changes for the
// life of that step.
package flavor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/runner"
)

// Kind names the execution backend.
type Kind string

const (
	KindHost   Kind = "host"
	KindDevice Kind = "device"
)

// Target identifies an execution backend. Serial and HasRoot are only
// meaningful for KindDevice.
type Target struct {
	Kind    Kind
	Serial  string
	HasRoot bool
}

// HostTarget returns the local-host target.
func HostTarget() Target { return Target{Kind: KindHost} }

// DeviceTarget returns a remote device target.
func DeviceTarget(serial string, hasRoot bool) Target {
	return Target{Kind: KindDevice, Serial: serial, HasRoot: hasRoot}
}

func (t Target) String() string {
	if t.Kind == KindDevice {
		return fmt.Sprintf("device(%s, root=%t)", t.Serial, t.HasRoot)
	}
	return string(t.Kind)
}

// CommandResult is the output and exit status of a program run through a flavor.
type CommandResult struct {
	Output     []byte
	ExitStatus int
}

// Flavor is the capability set build steps use for every host/device
// dependent operation.
type Flavor interface {
	Target() Target

	// RunCommand runs a program by name. Host resolves it under the host
	// binary directory, Device under the device binary directory or through
	// an intent launch, depending on root access.
	RunCommand(ctx context.Context, executable string, args []string) (*CommandResult, error)

	PathExists(ctx context.Context, path string) (bool, error)
	ListDirectory(ctx context.Context, path string) ([]string, error)
	JoinPath(segments ...string) string
	ReadFile(ctx context.Context, path string) ([]byte, error)

	PushFile(ctx context.Context, localPath, remotePath string) error
	PullFile(ctx context.Context, remotePath, localPath string) error

	// CreateCleanDirectory leaves path existing and empty. Removal failures
	// are ignored; a path that still exists after removal is an error.
	CreateCleanDirectory(ctx context.Context, path string) error

	// CopyDirectoryContentsToDevice clears deviceDir and pushes every regular
	// file of hostDir into it, pushing the sync marker last.
	CopyDirectoryContentsToDevice(ctx context.Context, hostDir, deviceDir string) error

	// CopyDirectoryContentsToHost clears hostDir and pulls deviceDir into it.
	CopyDirectoryContentsToHost(ctx context.Context, deviceDir, hostDir string) error

	Compile(ctx context.Context, opts CompileOptions) error
	Install(ctx context.Context, opts InstallOptions) error

	// Preflight verifies the backend is reachable and its tooling is usable.
	Preflight(ctx context.Context) error
}

// Options carries backend configuration not part of the Target identity.
type Options struct {
	// HostBinDir holds built binaries on the host (e.g. out/Release).
	HostBinDir string

	ADB           string // adb executable, default "adb"
	MinADBVersion string // semver constraint, empty disables the gate
	DeviceBinDir  string // default "/data/local/tmp/skia"
	AppPackage    string // launcher package used for intent launches
	AppActivity   string // launcher activity used for intent launches
	// IntentLog is where the launcher writes program output and the exit
	// marker for intent launches.
	IntentLog string
	// StopShell stops the Android framework around root runs.
	StopShell bool
}

func (o Options) withDefaults() Options {
	if o.ADB == "" {
		o.ADB = "adb"
	}
	if o.DeviceBinDir == "" {
		o.DeviceBinDir = "/data/local/tmp/skia"
	}
	if o.AppPackage == "" {
		o.AppPackage = "com.skia"
	}
	if o.AppActivity == "" {
		o.AppActivity = ".SkiaActivity"
	}
	if o.IntentLog == "" {
		o.IntentLog = "/sdcard/stagehand/run.log"
	}
	return o
}

// New returns the Flavor for target.
func New(target Target, r runner.Runner, opts Options, log zerolog.Logger) (Flavor, error) {
	opts = opts.withDefaults()
	switch target.Kind {
	case KindHost, "":
		return &Host{Runner: r, BinDir: opts.HostBinDir, Log: log}, nil
	case KindDevice:
		if strings.TrimSpace(target.Serial) == "" {
			return nil, fmt.Errorf("flavor: device target requires a serial")
		}
		return &Device{
			Runner:  r,
			Serial:  target.Serial,
			HasRoot: target.HasRoot,
			Opts:    opts,
			Log:     log.With().Str("serial", target.Serial).Logger(),
		}, nil
	default:
		return nil, fmt.Errorf("flavor: unknown target kind %q", target.Kind)
	}
}
