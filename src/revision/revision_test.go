package revision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "DEPS"), []byte("skia@r1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("DEPS"); err != nil {
		t.Fatal(err)
	}
	sig := &object.Signature{Name: "bot", Email: "bot@example.com", When: time.Unix(1700000000, 0)}
	hash, err := wt.Commit("roll deps", &git.CommitOptions{Author: sig})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := repo.CreateTag("r1234", hash, &git.CreateTagOptions{Tagger: sig, Message: "r1234"}); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	return dir, hash.String()
}

func TestDetect(t *testing.T) {
	dir, sha := initRepo(t)
	sub := filepath.Join(dir, "out", "Release")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	info, err := Detect(sub)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if info.SHA != sha || info.Short != sha[:7] {
		t.Errorf("sha = %s/%s, want %s", info.SHA, info.Short, sha)
	}
	if info.Branch != "master" {
		t.Errorf("branch = %q", info.Branch)
	}
	if info.Tag != "r1234" {
		t.Errorf("tag = %q", info.Tag)
	}
}

func TestResolve(t *testing.T) {
	dir, sha := initRepo(t)
	if got := Resolve(dir, "abc"); got != "abc" {
		t.Errorf("override ignored: %q", got)
	}
	if got := Resolve(dir, ""); got != sha {
		t.Errorf("Resolve = %q, want %q", got, sha)
	}
	t.Setenv("CI_COMMIT_SHA", "fromci")
	if got := Resolve(t.TempDir(), ""); got != "fromci" {
		t.Errorf("CI fallback = %q", got)
	}
}
