package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/runner"
	"github.com/sofmeright/stagehand/src/toolver"
)

// GSUtil implements Client on top of the gsutil command-line tool.
type GSUtil struct {
	Runner runner.Runner
	// Path is the gsutil executable; defaults to "gsutil".
	Path string
	// BotoConfig, when set, is passed as BOTO_CONFIG to every invocation.
	BotoConfig string
	// MinVersion is an optional semver constraint checked once before first use.
	MinVersion string
	Log        zerolog.Logger

	checkOnce sync.Once
	checkErr  error
}

// NewGSUtil creates a gsutil-backed client.
func NewGSUtil(r runner.Runner, path, botoConfig string, log zerolog.Logger) *GSUtil {
	return &GSUtil{Runner: r, Path: path, BotoConfig: botoConfig, Log: log}
}

func (g *GSUtil) command(args ...string) runner.Command {
	name := g.Path
	if name == "" {
		name = "gsutil"
	}
	cmd := runner.Command{Name: name, Args: args}
	if g.BotoConfig != "" {
		cmd.Env = []string{"BOTO_CONFIG=" + g.BotoConfig}
	}
	return cmd
}

func (g *GSUtil) run(ctx context.Context, args ...string) (*runner.Result, error) {
	if err := g.preflight(ctx); err != nil {
		return nil, err
	}
	return g.Runner.Run(ctx, g.command(args...))
}

func (g *GSUtil) preflight(ctx context.Context) error {
	if g.MinVersion == "" {
		return nil
	}
	g.checkOnce.Do(func() {
		res, err := g.Runner.Run(ctx, g.command("version"))
		if err != nil {
			g.checkErr = fmt.Errorf("gsutil version: %w", err)
			return
		}
		v, err := toolver.Check("gsutil", string(res.Output), g.MinVersion)
		if err != nil {
			g.checkErr = err
			return
		}
		g.Log.Debug().Str("version", v.String()).Msg("gsutil preflight passed")
	})
	return g.checkErr
}

// List implements Client.
func (g *GSUtil) List(ctx context.Context, loc Location) ([]string, error) {
	res, err := g.run(ctx, "ls", loc.URL()+"/")
	if err != nil {
		if isNoMatch(res) {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotExist)
		}
		return nil, fmt.Errorf("gsutil ls %s: %w", loc, err)
	}
	prefix := loc.URL() + "/"
	var names []string
	for _, line := range strings.Split(string(res.Output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, prefix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(line, prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Exists implements Client.
func (g *GSUtil) Exists(ctx context.Context, loc Location) (bool, error) {
	res, err := g.run(ctx, "ls", loc.URL())
	if err == nil {
		return true, nil
	}
	if isNoMatch(res) {
		return false, nil
	}
	return false, fmt.Errorf("gsutil ls %s: %w", loc, err)
}

// CopyFrom implements Client.
func (g *GSUtil) CopyFrom(ctx context.Context, src Location, localDir string) error {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", localDir, err)
	}
	res, err := g.run(ctx, "-m", "cp", "-R", src.URL()+"/*", localDir)
	if err != nil {
		if isNoMatch(res) {
			return fmt.Errorf("%s: %w", src, ErrNotExist)
		}
		return fmt.Errorf("gsutil cp %s: %w", src, err)
	}
	return nil
}

// CopyTo implements Client.
func (g *GSUtil) CopyTo(ctx context.Context, localDir string, dst Location, acl ACL) error {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localDir, err)
	}
	if len(entries) == 0 {
		return nil
	}
	args := []string{"-m", "cp", "-a", string(acl), "-R"}
	for _, e := range entries {
		args = append(args, filepath.Join(localDir, e.Name()))
	}
	args = append(args, dst.URL()+"/")
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("gsutil cp to %s: %w", dst, err)
	}
	return nil
}

// Delete implements Client.
func (g *GSUtil) Delete(ctx context.Context, loc Location) error {
	res, err := g.run(ctx, "-m", "rm", "-R", loc.URL())
	if err != nil {
		if isNoMatch(res) {
			return nil
		}
		return fmt.Errorf("gsutil rm %s: %w", loc, err)
	}
	return nil
}

// ReadObject implements Client.
func (g *GSUtil) ReadObject(ctx context.Context, loc Location) ([]byte, error) {
	res, err := g.run(ctx, "cat", loc.URL())
	if err != nil {
		if isNoMatch(res) {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotExist)
		}
		return nil, fmt.Errorf("gsutil cat %s: %w", loc, err)
	}
	return res.Output, nil
}

// WriteObject implements Client.
func (g *GSUtil) WriteObject(ctx context.Context, loc Location, data []byte, acl ACL) error {
	tmp, err := os.CreateTemp("", "stagehand-object-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if _, err := g.run(ctx, "cp", "-a", string(acl), tmp.Name(), loc.URL()); err != nil {
		return fmt.Errorf("gsutil cp to %s: %w", loc, err)
	}
	return nil
}

// isNoMatch recognises gsutil's "matched no objects" family of failures.
func isNoMatch(res *runner.Result) bool {
	if res == nil {
		return false
	}
	out := strings.ToLower(string(res.Output))
	return strings.Contains(out, "matched no objects") ||
		strings.Contains(out, "no urls matched") ||
		strings.Contains(out, "nosuchkey") ||
		strings.Contains(out, "no such object") ||
		notFound404.MatchString(out)
}

// notFound404 matches gsutil's HTTP 404 report, e.g.
// "NotFoundException: 404 gs://bucket/dir/TIMESTAMP does not exist."
var notFound404 = regexp.MustCompile(`(notfoundexception: 404\b|\b404\b[^\n]*(not found|does not exist))`)

