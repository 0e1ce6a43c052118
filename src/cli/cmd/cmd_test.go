package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yml")}, args...))
	return rootCmd.Execute()
}

func TestSyncUpThenDown(t *testing.T) {
	bucket := t.TempDir()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "page.skp"), []byte("skp"), 0o644); err != nil {
		t.Fatal(err)
	}
	remote := "file://" + bucket + "/skps"

	if err := execute(t, "sync", "up", src, remote); err != nil {
		t.Fatalf("sync up: %v", err)
	}
	stamp, err := os.ReadFile(filepath.Join(bucket, "skps", "TIMESTAMP"))
	if err != nil {
		t.Fatalf("remote marker: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "skps")
	if err := execute(t, "sync", "down", remote, dst); err != nil {
		t.Fatalf("sync down: %v", err)
	}
	if got, _ := os.ReadFile(filepath.Join(dst, "TIMESTAMP")); string(got) != string(stamp) {
		t.Errorf("local marker = %q, want %q", got, stamp)
	}
	if _, err := os.Stat(filepath.Join(dst, "page.skp")); err != nil {
		t.Errorf("payload not downloaded: %v", err)
	}
	if err := execute(t, "sync", "status", dst, remote); err != nil {
		t.Errorf("sync status: %v", err)
	}

	// A fresh stamp stales the downloaded copy, so the next down re-copies.
	if err := os.WriteFile(filepath.Join(bucket, "skps", "TIMESTAMP"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, "sync", "stamp", remote); err != nil {
		t.Fatalf("sync stamp: %v", err)
	}
	restamped, _ := os.ReadFile(filepath.Join(bucket, "skps", "TIMESTAMP"))
	if string(restamped) == "1" {
		t.Error("stamp did not rewrite the remote marker")
	}
}

func TestRunRejectsUnknownStep(t *testing.T) {
	if err := execute(t, "run", "no-such-step"); err == nil {
		t.Error("unknown step should fail")
	}
}

func TestRunDryRun(t *testing.T) {
	if err := execute(t, "run", "compile", "--dry-run", "--no-history", "--workdir", t.TempDir(), "--attempts", "2", "-a", "target=dm"); err != nil {
		t.Errorf("dry run: %v", err)
	}
}
