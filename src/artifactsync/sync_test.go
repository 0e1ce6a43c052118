package artifactsync

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/sofmeright/stagehand/src/storage"
)

// memClient is an in-memory bucket keyed by "<bucket>/<path>".
type memClient struct {
	objects   map[string][]byte
	transfers int
	ops       []string
}

func newMemClient() *memClient {
	return &memClient{objects: map[string][]byte{}}
}

func (m *memClient) put(loc storage.Location, data string) {
	m.objects[loc.URL()] = []byte(data)
}

func (m *memClient) List(ctx context.Context, loc storage.Location) ([]string, error) {
	prefix := loc.URL() + "/"
	var names []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			names = append(names, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memClient) Exists(ctx context.Context, loc storage.Location) (bool, error) {
	names, _ := m.List(ctx, loc)
	_, ok := m.objects[loc.URL()]
	return ok || len(names) > 0, nil
}

func (m *memClient) CopyFrom(ctx context.Context, src storage.Location, localDir string) error {
	m.transfers++
	m.ops = append(m.ops, "copy-from "+src.URL())
	names, _ := m.List(ctx, src)
	if len(names) == 0 {
		return storage.ErrNotExist
	}
	for _, n := range names {
		p := filepath.Join(localDir, filepath.FromSlash(n))
		os.MkdirAll(filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, m.objects[src.URL()+"/"+n], 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (m *memClient) CopyTo(ctx context.Context, localDir string, dst storage.Location, acl storage.ACL) error {
	m.transfers++
	m.ops = append(m.ops, "copy-to "+dst.URL())
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(localDir, p)
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		m.objects[dst.URL()+"/"+filepath.ToSlash(rel)] = data
		return nil
	})
}

func (m *memClient) Delete(ctx context.Context, loc storage.Location) error {
	for k := range m.objects {
		if k == loc.URL() || strings.HasPrefix(k, loc.URL()+"/") {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *memClient) ReadObject(ctx context.Context, loc storage.Location) ([]byte, error) {
	data, ok := m.objects[loc.URL()]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return data, nil
}

func (m *memClient) WriteObject(ctx context.Context, loc storage.Location, data []byte, acl storage.ACL) error {
	m.ops = append(m.ops, "write "+path.Base(loc.Path))
	m.objects[loc.URL()] = data
	return nil
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func readPayload(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() == MarkerName {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		data, err := os.ReadFile(p)
		out[filepath.ToSlash(rel)] = string(data)
		return err
	})
	if err != nil {
		t.Fatalf("walking %s: %v", dir, err)
	}
	return out
}

var remote = storage.Location{Bucket: "gs://test", Path: "playback/gm-expected"}

func TestSyncDownFreshDirectory(t *testing.T) {
	ctx := context.Background()
	mc := newMemClient()
	mc.put(remote.Join(MarkerName), "1354128965")
	mc.put(remote.Join("a.png"), "png-bytes")

	local := filepath.Join(t.TempDir(), "expected")
	os.MkdirAll(local, 0o755)
	os.WriteFile(filepath.Join(local, "stale.png"), []byte("old"), 0o644)

	e := &Engine{Client: mc, Log: zerolog.Nop()}
	transferred, err := e.SyncDown(ctx, remote, local)
	if err != nil {
		t.Fatalf("SyncDown: %v", err)
	}
	if !transferred {
		t.Fatal("expected a transfer")
	}
	if diff := cmp.Diff(map[string]string{"a.png": "png-bytes"}, readPayload(t, local)); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	stamp, ok, err := ReadLocalMarker(local)
	if err != nil || !ok || stamp != "1354128965" {
		t.Fatalf("local marker = %q, %v, %v", stamp, ok, err)
	}
	inSync, err := e.AreInSync(ctx, local, remote)
	if err != nil || !inSync {
		t.Fatalf("AreInSync = %v, %v; want true", inSync, err)
	}
}

func TestSyncRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := newMemClient()
	e := &Engine{Client: mc, Now: fixedClock(1354128985), Log: zerolog.Nop()}

	dirA := t.TempDir()
	os.WriteFile(filepath.Join(dirA, "x.png"), []byte("x"), 0o644)
	os.MkdirAll(filepath.Join(dirA, "tiles"), 0o755)
	os.WriteFile(filepath.Join(dirA, "tiles", "0_0.png"), []byte("tile"), 0o644)

	stamp, err := e.SyncUp(ctx, dirA, remote, storage.ACLPublicRead)
	if err != nil {
		t.Fatalf("SyncUp: %v", err)
	}
	if stamp != "1354128985" {
		t.Fatalf("stamp = %q", stamp)
	}

	dirB := filepath.Join(t.TempDir(), "b")
	if _, err := e.SyncDown(ctx, remote, dirB); err != nil {
		t.Fatalf("SyncDown: %v", err)
	}
	if diff := cmp.Diff(readPayload(t, dirA), readPayload(t, dirB)); diff != "" {
		t.Fatalf("payload mismatch (-A +B):\n%s", diff)
	}

	before := mc.transfers
	inSync, err := e.AreInSync(ctx, dirB, remote)
	if err != nil || !inSync {
		t.Fatalf("AreInSync = %v, %v", inSync, err)
	}
	transferred, err := e.SyncDown(ctx, remote, dirB)
	if err != nil || transferred {
		t.Fatalf("second SyncDown transferred=%v err=%v", transferred, err)
	}
	if mc.transfers != before {
		t.Fatalf("transfers went from %d to %d", before, mc.transfers)
	}
}

func TestAreInSyncMismatches(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		local  string // "" = absent
		remote string // "" = absent
		want   bool
	}{
		{"both absent", "", "", false},
		{"local absent", "", "1354128965", false},
		{"remote absent", "1354128965", "", false},
		{"different", "1354128965", "1354128985", false},
		{"prefix differs", "135412896", "1354128965", false},
		{"equal", "1354128965", "1354128965", true},
		{"equal ignoring newline", "1354128965\n", "1354128965", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := newMemClient()
			dir := t.TempDir()
			if tt.local != "" {
				os.WriteFile(filepath.Join(dir, MarkerName), []byte(tt.local), 0o644)
			}
			if tt.remote != "" {
				mc.put(remote.Join(MarkerName), tt.remote)
			}
			e := &Engine{Client: mc, Log: zerolog.Nop()}
			got, err := e.AreInSync(ctx, dir, remote)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("AreInSync = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSyncUpCommitsMarkerLast(t *testing.T) {
	ctx := context.Background()
	mc := newMemClient()
	e := &Engine{Client: mc, Now: fixedClock(200), Log: zerolog.Nop()}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.png"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(dir, MarkerName), []byte("100"), 0o644)

	if _, err := e.SyncUp(ctx, dir, remote, storage.ACLPrivate); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"copy-to " + remote.URL(), "write " + MarkerName}, mc.ops); diff != "" {
		t.Fatalf("operation order (-want +got):\n%s", diff)
	}
	if got := string(mc.objects[remote.Join(MarkerName).URL()]); got != "200" {
		t.Fatalf("remote marker = %q; stale local marker leaked into payload", got)
	}
	if stamp, _, _ := ReadLocalMarker(dir); stamp != "200" {
		t.Fatalf("local marker = %q, want 200", stamp)
	}
}

func TestSyncUpRejectsInvalidACL(t *testing.T) {
	e := &Engine{Client: newMemClient(), Log: zerolog.Nop()}
	if _, err := e.SyncUp(context.Background(), t.TempDir(), remote, "everyone"); err == nil {
		t.Fatal("expected invalid acl error")
	}
}

func TestWriteCurrentTimestampInvalidatesCopies(t *testing.T) {
	ctx := context.Background()
	mc := newMemClient()
	mc.put(remote.Join("a.png"), "a")
	mc.put(remote.Join(MarkerName), "100")
	e := &Engine{Client: mc, Now: fixedClock(300), Log: zerolog.Nop()}

	dir := t.TempDir()
	if err := WriteLocalMarker(dir, "100"); err != nil {
		t.Fatal(err)
	}
	stamp, err := e.WriteCurrentTimestamp(ctx, remote, storage.ACLPrivate)
	if err != nil {
		t.Fatal(err)
	}
	if stamp != "300" {
		t.Errorf("stamp = %q, want 300", stamp)
	}
	if diff := cmp.Diff([]string{"write " + MarkerName}, mc.ops); diff != "" {
		t.Errorf("operations (-want +got):\n%s", diff)
	}
	if inSync, _ := e.AreInSync(ctx, dir, remote); inSync {
		t.Error("local copy should be stale after a new stamp")
	}
	if _, err := e.WriteCurrentTimestamp(ctx, remote, "everyone"); err == nil {
		t.Error("expected invalid acl error")
	}
}

func TestSyncDownWithoutRemoteMarker(t *testing.T) {
	ctx := context.Background()
	mc := newMemClient()
	mc.put(remote.Join("a.png"), "a")

	local := t.TempDir()
	e := &Engine{Client: mc, Log: zerolog.Nop()}
	transferred, err := e.SyncDown(ctx, remote, local)
	if err != nil || !transferred {
		t.Fatalf("SyncDown = %v, %v", transferred, err)
	}
	if _, ok, _ := ReadLocalMarker(local); ok {
		t.Fatal("local marker must stay absent when remote has none")
	}
	if inSync, _ := e.AreInSync(ctx, local, remote); inSync {
		t.Fatal("unmarked copy must not be in sync")
	}
}

func TestSyncDownPropagatesCopyFailure(t *testing.T) {
	e := &Engine{Client: newMemClient(), Log: zerolog.Nop()}
	local := t.TempDir()
	_, err := e.SyncDown(context.Background(), remote, local)
	if !errors.Is(err, storage.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
	if _, ok, _ := ReadLocalMarker(local); ok {
		t.Fatal("failed copy must not leave a marker")
	}
}
