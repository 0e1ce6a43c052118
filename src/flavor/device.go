package flavor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/runner"
	"github.com/sofmeright/stagehand/src/toolver"
)

const (
	existsToken = "FILE_EXISTS"
	exitToken   = "STAGEHAND_EXIT="

	// androidMake is the cross-build wrapper, relative to the checkout.
	androidMake = "platform_tools/android/bin/android_make"
)

// Remote cleanup after cancellation must not be cancelled itself.
var cleanupTimeout = 15 * time.Second

// Device drives an Android device through adb. Every operation is a separate
// adb invocation; adb's own exit status reflects the transport, not the
// remote program, so remote statuses are recovered from an echoed marker.
type Device struct {
	Runner  runner.Runner
	Serial  string
	HasRoot bool
	Opts    Options
	Log     zerolog.Logger
	// PollInterval paces process polling for intent launches.
	PollInterval time.Duration
}

func (d *Device) Target() Target { return DeviceTarget(d.Serial, d.HasRoot) }

func (d *Device) adb(args ...string) runner.Command {
	return runner.Command{Name: d.Opts.ADB, Args: append([]string{"-s", d.Serial}, args...)}
}

func (d *Device) run(ctx context.Context, args ...string) (*runner.Result, error) {
	cmd := d.adb(args...)
	d.Log.Debug().Str("cmd", cmd.String()).Msg("adb")
	res, err := d.Runner.Run(ctx, cmd)
	if res == nil {
		res = &runner.Result{ExitCode: -1}
	}
	return res, err
}

func (d *Device) shell(ctx context.Context, script string) (*runner.Result, error) {
	return d.run(ctx, "shell", script)
}

// shellStatus runs script and returns its output with the remote exit status
// recovered from the trailing marker line.
func (d *Device) shellStatus(ctx context.Context, script string) ([]byte, int, error) {
	res, err := d.shell(ctx, script+"; echo "+exitToken+"$?")
	if err != nil {
		return res.Output, -1, err
	}
	out, status, ok := splitExitMarker(res.Output)
	if !ok {
		return out, -1, fmt.Errorf("no exit status in shell output")
	}
	return out, status, nil
}

func splitExitMarker(raw []byte) ([]byte, int, bool) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	idx := strings.LastIndex(text, exitToken)
	if idx < 0 {
		return raw, -1, false
	}
	tail := strings.TrimSpace(text[idx+len(exitToken):])
	if nl := strings.IndexByte(tail, '\n'); nl >= 0 {
		tail = tail[:nl]
	}
	status, err := strconv.Atoi(strings.TrimSpace(tail))
	if err != nil {
		return raw, -1, false
	}
	return []byte(text[:idx]), status, true
}

func (d *Device) binaryPath(exe string) string {
	if strings.HasPrefix(exe, "/") {
		return exe
	}
	return path.Join(d.Opts.DeviceBinDir, exe)
}

// RunCommand runs exe on the device. With root the binary is executed
// directly from the device binary directory; without root the launcher app
// is started with an intent and polled until it exits.
func (d *Device) RunCommand(ctx context.Context, exe string, args []string) (*CommandResult, error) {
	if d.HasRoot {
		return d.runRoot(ctx, exe, args)
	}
	return d.runIntent(ctx, exe, args)
}

func (d *Device) runRoot(ctx context.Context, exe string, args []string) (*CommandResult, error) {
	if d.Opts.StopShell {
		if _, err := d.shell(quiet(ctx), "stop"); err != nil {
			d.Log.Warn().Err(err).Msg("stopping framework failed")
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(quiet(ctx)), cleanupTimeout)
			defer cancel()
			if _, err := d.shell(cctx, "start"); err != nil {
				d.Log.Warn().Err(err).Msg("restarting framework failed")
			}
		}()
	}

	bin := d.binaryPath(exe)
	parts := []string{shellQuote(bin)}
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	out, status, err := d.shellStatus(ctx, strings.Join(parts, " "))
	result := &CommandResult{Output: out, ExitStatus: status}
	if err != nil {
		if ctx.Err() != nil {
			d.killRemote(quiet(ctx), "pkill -f "+shellQuote(bin))
		}
		return result, deviceErr("run", exe, err)
	}
	if status != 0 {
		return result, &OpError{Flavor: KindDevice, Op: "run", Path: exe, Kind: ErrCommand,
			Err: fmt.Errorf("exit status %d", status)}
	}
	return result, nil
}

// runIntent starts the launcher app with the command line and log path as
// intent extras. The launcher writes the program's output to the log and
// finishes it with an exit marker line. The log is tailed while the app
// runs; only new log bytes count as program output. Launch, poll and kill
// traffic is kept off the attempt output.
func (d *Device) runIntent(ctx context.Context, exe string, args []string) (*CommandResult, error) {
	quietCtx := quiet(ctx)
	logPath := d.Opts.IntentLog
	if _, err := d.shell(quietCtx, "rm -f "+shellQuote(logPath)); err != nil {
		return &CommandResult{ExitStatus: -1}, deviceErr("launch", exe, err)
	}

	component := d.Opts.AppPackage + "/" + d.Opts.AppActivity
	cmdline := strings.Join(append([]string{exe}, args...), " ")
	script := "am start -S -W -n " + shellQuote(component) +
		" --es args " + shellQuote(cmdline) + " --es log " + shellQuote(logPath)
	res, err := d.shell(quietCtx, script)
	if err != nil {
		return &CommandResult{Output: res.Output, ExitStatus: -1}, deviceErr("launch", exe, err)
	}
	if bytes.Contains(res.Output, []byte("Error:")) {
		return &CommandResult{Output: res.Output, ExitStatus: 1}, &OpError{Flavor: KindDevice, Op: "launch", Path: exe,
			Kind: ErrCommand, Err: errors.New(strings.TrimSpace(string(res.Output)))}
	}

	tail := &logTail{w: runner.OutputFrom(ctx)}
	interval := d.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for running := true; running; {
		select {
		case <-ctx.Done():
			d.killRemote(quietCtx, "am force-stop "+shellQuote(d.Opts.AppPackage))
			return &CommandResult{Output: tail.buf, ExitStatus: -1}, deviceErr("run", exe, ctx.Err())
		case <-ticker.C:
		}
		if err := d.readLog(quietCtx, logPath, tail); err != nil && ctx.Err() == nil {
			return &CommandResult{Output: tail.buf, ExitStatus: -1}, deviceErr("read-log", logPath, err)
		}
		ps, err := d.shell(quietCtx, "pidof "+shellQuote(d.Opts.AppPackage))
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return &CommandResult{Output: tail.buf, ExitStatus: -1}, deviceErr("poll", exe, err)
		}
		running = strings.TrimSpace(string(ps.Output)) != ""
	}

	// The app may have flushed its last lines after the previous read.
	if err := d.readLog(quietCtx, logPath, tail); err != nil {
		return &CommandResult{Output: tail.buf, ExitStatus: -1}, deviceErr("read-log", logPath, err)
	}
	out, status, ok := splitExitMarker(tail.buf)
	result := &CommandResult{Output: out, ExitStatus: status}
	if !ok {
		return result, &OpError{Flavor: KindDevice, Op: "run", Path: exe, Kind: ErrCommand,
			Err: errors.New("program exited without reporting a status")}
	}
	if status != 0 {
		return result, &OpError{Flavor: KindDevice, Op: "run", Path: exe, Kind: ErrCommand,
			Err: fmt.Errorf("exit status %d", status)}
	}
	return result, nil
}

// logTail accumulates a growing remote log and forwards only unseen bytes.
type logTail struct {
	w   io.Writer
	buf []byte
}

func (t *logTail) update(content []byte) {
	if len(content) <= len(t.buf) {
		return
	}
	fresh := content[len(t.buf):]
	t.buf = append(t.buf, fresh...)
	if t.w != nil {
		t.w.Write(fresh)
	}
}

func (d *Device) readLog(ctx context.Context, logPath string, t *logTail) error {
	out, status, err := d.shellStatus(ctx, "cat "+shellQuote(logPath)+" 2>/dev/null")
	if err != nil {
		return err
	}
	if status != 0 {
		// Not created yet.
		return nil
	}
	t.update(out)
	return nil
}

// quiet detaches ctx from any attempt output writer, so bookkeeping
// commands do not count as progress of the supervised program.
func quiet(ctx context.Context) context.Context {
	return runner.WithOutput(ctx, io.Discard)
}

// killRemote makes a best-effort attempt to stop a program left running on
// the device after the local adb process was killed.
func (d *Device) killRemote(ctx context.Context, script string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := d.shell(cctx, script); err != nil {
		d.Log.Warn().Err(err).Str("script", script).Msg("remote kill failed")
	}
}

// PathExists checks with a shell test that prints a token only when the path
// exists. adb shell does not report the remote status, so absence of the
// token means absence of the path.
func (d *Device) PathExists(ctx context.Context, p string) (bool, error) {
	res, err := d.shell(ctx, "if [ -e "+shellQuote(p)+" ]; then echo "+existsToken+"; fi")
	if err != nil {
		return false, deviceErr("exists", p, err)
	}
	return bytes.Contains(res.Output, []byte(existsToken)), nil
}

func (d *Device) ListDirectory(ctx context.Context, p string) ([]string, error) {
	out, status, err := d.shellStatus(ctx, "ls "+shellQuote(p))
	if err != nil {
		return nil, deviceErr("list", p, err)
	}
	if status != 0 {
		return nil, deviceErr("list", p, fmt.Errorf("ls exit status %d: %s", status, strings.TrimSpace(string(out))))
	}
	var names []string
	for _, line := range strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// JoinPath joins with forward slashes regardless of the host OS.
func (d *Device) JoinPath(segments ...string) string { return path.Join(segments...) }

func (d *Device) ReadFile(ctx context.Context, p string) ([]byte, error) {
	out, status, err := d.shellStatus(ctx, "cat "+shellQuote(p))
	if err != nil {
		return nil, deviceErr("read", p, err)
	}
	if status != 0 {
		return nil, deviceErr("read", p, fmt.Errorf("cat exit status %d", status))
	}
	return out, nil
}

func (d *Device) PushFile(ctx context.Context, localPath, remotePath string) error {
	if _, err := d.run(ctx, "push", localPath, remotePath); err != nil {
		return deviceErr("push", localPath, err)
	}
	return nil
}

func (d *Device) PullFile(ctx context.Context, remotePath, localPath string) error {
	if _, err := d.run(ctx, "pull", remotePath, localPath); err != nil {
		return deviceErr("pull", remotePath, err)
	}
	return nil
}

func (d *Device) CreateCleanDirectory(ctx context.Context, p string) error {
	return createCleanDirectory(ctx, dirOps{
		kind: KindDevice,
		remove: func(ctx context.Context, p string) error {
			_, err := d.shell(ctx, "rm -r "+shellQuote(p))
			return err
		},
		exists: d.PathExists,
		mkdir: func(ctx context.Context, p string) error {
			if _, err := d.shell(ctx, "mkdir -p "+shellQuote(p)); err != nil {
				return deviceErr("mkdir", p, err)
			}
			return nil
		},
	}, p)
}

func (d *Device) CopyDirectoryContentsToDevice(ctx context.Context, hostDir, deviceDir string) error {
	return copyContentsToDevice(ctx, d, hostDir, deviceDir)
}

// CopyDirectoryContentsToHost pulls the whole device tree in one transfer.
// The trailing "/." makes adb copy the directory's contents rather than
// nesting the directory itself under hostDir.
func (d *Device) CopyDirectoryContentsToHost(ctx context.Context, deviceDir, hostDir string) error {
	local := &Host{Log: d.Log}
	if err := local.CreateCleanDirectory(ctx, hostDir); err != nil {
		return err
	}
	return d.PullFile(ctx, strings.TrimRight(deviceDir, "/")+"/.", hostDir)
}

func (d *Device) Compile(ctx context.Context, opts CompileOptions) error {
	if opts.Device == "" {
		return &OpError{Flavor: KindDevice, Op: "compile", Path: opts.Target, Kind: ErrCommand,
			Err: errors.New("no device profile configured")}
	}
	args := []string{opts.Target, "-d", opts.Device, "BUILDTYPE=" + opts.buildType()}
	args = append(args, opts.DefaultMakeFlags...)
	if opts.UseCCache {
		if _, ok := runner.LookPath("ccache"); ok {
			args = append(args, "--use-ccache")
		}
	}
	args = append(args, opts.MakeFlags...)
	cmd := runner.Command{Name: androidMake, Args: args, Dir: opts.Dir, Env: opts.Env.Environ()}
	if opts.Dir != "" {
		cmd.Name = filepath.Join(opts.Dir, androidMake)
	}
	d.Log.Info().Str("cmd", cmd.String()).Msg("compile")
	if _, err := d.Runner.Run(ctx, cmd); err != nil {
		return &OpError{Flavor: KindDevice, Op: "compile", Path: opts.Target, Kind: ErrCommand, Err: err}
	}
	return nil
}

// Install pushes binaries into the device binary directory on rooted
// devices, or installs the launcher APK otherwise.
func (d *Device) Install(ctx context.Context, opts InstallOptions) error {
	if !d.HasRoot {
		apk := opts.launcherAPK()
		if apk == "" {
			return deviceErr("install", "", errors.New("no APK to install on a device without root"))
		}
		if _, err := d.run(ctx, "install", "-r", apk); err != nil {
			return deviceErr("install", apk, err)
		}
		return nil
	}
	if _, err := d.shell(ctx, "mkdir -p "+shellQuote(d.Opts.DeviceBinDir)); err != nil {
		return deviceErr("install", d.Opts.DeviceBinDir, err)
	}
	for _, bin := range opts.Binaries {
		src := filepath.Join(opts.HostBinDir, bin)
		if _, err := os.Stat(src); err != nil {
			return hostErr("install", src, err)
		}
		dst := d.JoinPath(d.Opts.DeviceBinDir, bin)
		if err := d.PushFile(ctx, src, dst); err != nil {
			return err
		}
		if _, err := d.shell(ctx, "chmod 755 "+shellQuote(dst)); err != nil {
			return deviceErr("chmod", dst, err)
		}
	}
	return nil
}

// Preflight checks the adb version against the configured constraint and
// that the device is attached and online.
func (d *Device) Preflight(ctx context.Context) error {
	res, err := d.Runner.Run(ctx, runner.Command{Name: d.Opts.ADB, Args: []string{"version"}})
	if err != nil {
		return deviceErr("preflight", "", err)
	}
	v, err := toolver.Check("adb", string(res.Output), d.Opts.MinADBVersion)
	if err != nil {
		return deviceErr("preflight", "", err)
	}
	state, err := d.run(ctx, "get-state")
	if err != nil {
		return deviceErr("preflight", "", err)
	}
	if s := strings.TrimSpace(string(state.Output)); s != "device" {
		return deviceErr("preflight", "", fmt.Errorf("device %s is %q", d.Serial, s))
	}
	ev := d.Log.Debug()
	if v != nil {
		ev = ev.Str("adb", v.String())
	}
	ev.Msg("device ready")
	return nil
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
