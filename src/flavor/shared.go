package flavor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sofmeright/stagehand/src/artifactsync"
)

// dirOps is the per-backend primitive set createCleanDirectory needs.
type dirOps struct {
	kind   Kind
	remove func(ctx context.Context, path string) error
	exists func(ctx context.Context, path string) (bool, error)
	mkdir  func(ctx context.Context, path string) error
}

// createCleanDirectory removes path (ignoring failure), confirms it is gone,
// then recreates it. Both backends share this sequence so the post-removal
// existence check is never skipped.
func createCleanDirectory(ctx context.Context, ops dirOps, path string) error {
	_ = ops.remove(ctx, path)
	exists, err := ops.exists(ctx, path)
	if err != nil {
		return err
	}
	if exists {
		kind := ErrHostFS
		if ops.kind == KindDevice {
			kind = ErrTransport
		}
		return &OpError{Flavor: ops.kind, Op: "create-clean-directory", Path: path, Kind: kind, Err: ErrStuckPath}
	}
	return ops.mkdir(ctx, path)
}

// copyContentsToDevice clears deviceDir and pushes each regular file found
// directly in hostDir. The sync marker goes last so an interrupted copy
// never leaves a marker vouching for incomplete contents.
func copyContentsToDevice(ctx context.Context, f Flavor, hostDir, deviceDir string) error {
	if err := f.CreateCleanDirectory(ctx, deviceDir); err != nil {
		return err
	}
	entries, err := os.ReadDir(hostDir)
	if err != nil {
		return hostErr("read-dir", hostDir, err)
	}
	hasMarker := false
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if e.Name() == artifactsync.MarkerName {
			hasMarker = true
			continue
		}
		if err := f.PushFile(ctx, filepath.Join(hostDir, e.Name()), f.JoinPath(deviceDir, e.Name())); err != nil {
			return err
		}
	}
	if hasMarker {
		return f.PushFile(ctx, filepath.Join(hostDir, artifactsync.MarkerName), f.JoinPath(deviceDir, artifactsync.MarkerName))
	}
	return nil
}
