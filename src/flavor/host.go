package flavor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/runner"
	"github.com/sofmeright/stagehand/src/storage"
)

// Host runs everything on the local machine. Host and "device" paths share
// one filesystem, so push and pull are local copies.
type Host struct {
	Runner runner.Runner
	BinDir string
	Log    zerolog.Logger
}

func (h *Host) Target() Target { return HostTarget() }

func (h *Host) binary(name string) string {
	if h.BinDir == "" || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(h.BinDir, name)
}

func (h *Host) RunCommand(ctx context.Context, executable string, args []string) (*CommandResult, error) {
	cmd := runner.Command{Name: h.binary(executable), Args: args}
	h.Log.Debug().Str("cmd", cmd.String()).Msg("run")
	res, err := h.Runner.Run(ctx, cmd)
	if res == nil {
		res = &runner.Result{ExitCode: -1}
	}
	out := &CommandResult{Output: res.Output, ExitStatus: res.ExitCode}
	if err != nil {
		var exit *runner.ExitError
		if errors.As(err, &exit) {
			return out, &OpError{Flavor: KindHost, Op: "run", Path: executable, Kind: ErrCommand, Err: err}
		}
		return out, &OpError{Flavor: KindHost, Op: "run", Path: executable, Kind: ErrHostFS, Err: err}
	}
	return out, nil
}

func (h *Host) PathExists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, hostErr("stat", path, err)
}

func (h *Host) ListDirectory(_ context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, hostErr("list", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (h *Host) JoinPath(segments ...string) string { return filepath.Join(segments...) }

func (h *Host) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hostErr("read", path, err)
	}
	return data, nil
}

func (h *Host) PushFile(_ context.Context, localPath, remotePath string) error {
	return h.copyFile("push", localPath, remotePath)
}

func (h *Host) PullFile(_ context.Context, remotePath, localPath string) error {
	return h.copyFile("pull", remotePath, localPath)
}

func (h *Host) copyFile(op, src, dst string) error {
	if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if samePath(src, dst) {
		return nil
	}
	if err := storage.CopyFile(src, dst); err != nil {
		return hostErr(op, src, err)
	}
	return nil
}

func (h *Host) CreateCleanDirectory(ctx context.Context, path string) error {
	return createCleanDirectory(ctx, dirOps{
		kind:   KindHost,
		remove: func(_ context.Context, p string) error { return os.RemoveAll(p) },
		exists: h.PathExists,
		mkdir: func(_ context.Context, p string) error {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return hostErr("mkdir", p, err)
			}
			return nil
		},
	}, path)
}

func (h *Host) CopyDirectoryContentsToDevice(ctx context.Context, hostDir, deviceDir string) error {
	if samePath(hostDir, deviceDir) {
		return nil
	}
	return copyContentsToDevice(ctx, h, hostDir, deviceDir)
}

// CopyDirectoryContentsToHost copies the whole tree, like the device pull.
func (h *Host) CopyDirectoryContentsToHost(ctx context.Context, deviceDir, hostDir string) error {
	if samePath(hostDir, deviceDir) {
		return nil
	}
	if err := h.CreateCleanDirectory(ctx, hostDir); err != nil {
		return err
	}
	err := filepath.WalkDir(deviceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(deviceDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(hostDir, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return storage.CopyFile(p, target)
		}
		return nil
	})
	if err != nil {
		return hostErr("pull", deviceDir, err)
	}
	return nil
}

func (h *Host) Compile(ctx context.Context, opts CompileOptions) error {
	args := []string{opts.Target, "BUILDTYPE=" + opts.buildType()}
	args = append(args, opts.DefaultMakeFlags...)
	args = append(args, opts.MakeFlags...)
	env := opts.Env.Environ()
	if opts.UseCCache {
		if _, ok := runner.LookPath("ccache"); ok {
			env = append(env, "CC=ccache cc", "CXX=ccache c++")
		}
	}
	cmd := runner.Command{Name: "make", Args: args, Dir: opts.Dir, Env: env}
	h.Log.Info().Str("cmd", cmd.String()).Msg("compile")
	if _, err := h.Runner.Run(ctx, cmd); err != nil {
		return &OpError{Flavor: KindHost, Op: "compile", Path: opts.Target, Kind: ErrCommand, Err: err}
	}
	return nil
}

// Install is a no-op on the host; binaries run from where they were built.
func (h *Host) Install(context.Context, InstallOptions) error { return nil }

// Preflight has nothing to verify on the host.
func (h *Host) Preflight(context.Context) error { return nil }

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
