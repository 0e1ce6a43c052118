// Package artifactsync keeps local directories and their cloud counterparts
// in sync using timestamp markers.
//
// A directory is in sync with storage iff both sides carry a TIMESTAMP marker
// with byte-identical values. Anything else (either marker missing, values
// differing, a read failure) means "not in sync" and forces a full directory
// copy. Payloads are always transferred before markers are written, so an
// observer never sees a marker without the payload it describes.
package artifactsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/storage"
)

// MarkerName is the marker file/object name on both sides.
const MarkerName = "TIMESTAMP"

// Engine applies directory-level sync decisions through a storage.Client.
type Engine struct {
	Client storage.Client
	Now    func() time.Time
	Log    zerolog.Logger
}

// New creates an Engine using the wall clock.
func New(client storage.Client, log zerolog.Logger) *Engine {
	return &Engine{Client: client, Now: time.Now, Log: log}
}

// ReadLocalMarker returns the marker value in dir, or ok=false when absent.
func ReadLocalMarker(dir string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(string(data)), true, nil
}

// WriteLocalMarker stores value as dir's marker.
func WriteLocalMarker(dir, value string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MarkerName), []byte(value), 0o644)
}

// ReadRemoteMarker fetches the marker at loc; ok=false when absent.
func (e *Engine) ReadRemoteMarker(ctx context.Context, loc storage.Location) (string, bool, error) {
	data, err := e.Client.ReadObject(ctx, loc.Join(MarkerName))
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(string(data)), true, nil
}

// AreInSync reports whether localDir's marker equals the marker at remote.
// The local marker is read first; when it is absent no network call is made.
// The remote marker is fetched on every call, never cached.
func (e *Engine) AreInSync(ctx context.Context, localDir string, remote storage.Location) (bool, error) {
	local, ok, err := ReadLocalMarker(localDir)
	if err != nil || !ok {
		return false, err
	}
	remoteValue, ok, err := e.ReadRemoteMarker(ctx, remote)
	if err != nil || !ok {
		return false, err
	}
	return local == remoteValue, nil
}

// SyncDown makes localDir a copy of remote unless the two are already in sync.
// It reports whether a transfer happened.
//
// The remote marker is read before the payload is copied; the local marker is
// written last with that value. If remote changes mid-copy the local marker is
// older than the payload and the next check re-copies.
func (e *Engine) SyncDown(ctx context.Context, remote storage.Location, localDir string) (bool, error) {
	inSync, err := e.AreInSync(ctx, localDir, remote)
	if err != nil {
		e.Log.Warn().Err(err).Str("local", localDir).Str("remote", remote.URL()).
			Msg("sync check failed; treating as out of sync")
	}
	if inSync {
		e.Log.Debug().Str("local", localDir).Str("remote", remote.URL()).Msg("already in sync")
		return false, nil
	}

	stamp, hasStamp, err := e.ReadRemoteMarker(ctx, remote)
	if err != nil {
		return false, fmt.Errorf("reading marker at %s: %w", remote, err)
	}

	if err := os.RemoveAll(localDir); err != nil {
		return false, fmt.Errorf("clearing %s: %w", localDir, err)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return false, fmt.Errorf("creating %s: %w", localDir, err)
	}

	e.Log.Info().Str("remote", remote.URL()).Str("local", localDir).Msg("downloading")
	if err := e.Client.CopyFrom(ctx, remote, localDir); err != nil {
		return true, fmt.Errorf("downloading %s: %w", remote, err)
	}

	if !hasStamp {
		// The copied tree may carry no marker, or a stale one; either way
		// the next check must not treat this copy as canonical.
		os.Remove(filepath.Join(localDir, MarkerName))
		e.Log.Warn().Str("remote", remote.URL()).Msg("remote has no marker; local copy left unmarked")
		return true, nil
	}
	if err := WriteLocalMarker(localDir, stamp); err != nil {
		return true, fmt.Errorf("writing marker in %s: %w", localDir, err)
	}
	return true, nil
}

// SyncUp uploads localDir to remote unconditionally, then stamps both sides
// with the current time. It returns the new marker value.
//
// The local marker is removed before upload so the payload never carries a
// stale marker. The remote marker is written only after the payload, and the
// local marker only after the remote one.
func (e *Engine) SyncUp(ctx context.Context, localDir string, remote storage.Location, acl storage.ACL) (string, error) {
	if !acl.Valid() {
		return "", fmt.Errorf("sync up %s: invalid acl %q", remote, acl)
	}
	if err := os.Remove(filepath.Join(localDir, MarkerName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("removing local marker: %w", err)
	}

	e.Log.Info().Str("local", localDir).Str("remote", remote.URL()).Str("acl", string(acl)).Msg("uploading")
	if err := e.Client.CopyTo(ctx, localDir, remote, acl); err != nil {
		return "", fmt.Errorf("uploading %s: %w", localDir, err)
	}

	stamp := e.stamp()
	if err := e.Client.WriteObject(ctx, remote.Join(MarkerName), []byte(stamp), acl); err != nil {
		return "", fmt.Errorf("writing marker at %s: %w", remote, err)
	}
	if err := WriteLocalMarker(localDir, stamp); err != nil {
		return stamp, fmt.Errorf("writing marker in %s: %w", localDir, err)
	}
	return stamp, nil
}

// WriteCurrentTimestamp stamps remote without transferring any payload, so
// every host holding an older copy re-downloads on its next SyncDown.
func (e *Engine) WriteCurrentTimestamp(ctx context.Context, remote storage.Location, acl storage.ACL) (string, error) {
	if !acl.Valid() {
		return "", fmt.Errorf("stamp %s: invalid acl %q", remote, acl)
	}
	stamp := e.stamp()
	if err := e.Client.WriteObject(ctx, remote.Join(MarkerName), []byte(stamp), acl); err != nil {
		return "", fmt.Errorf("writing marker at %s: %w", remote, err)
	}
	return stamp, nil
}

func (e *Engine) stamp() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return strconv.FormatInt(now().Unix(), 10)
}
