// Package revision identifies the source revision a step runs against, for
// history records and the got_revision argument.
package revision

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Info is the resolved identity of HEAD.
type Info struct {
	SHA    string
	Short  string
	Branch string // empty when detached
	Tag    string // tag pointing exactly at HEAD, if any
}

// Detect opens the repository containing dir and resolves HEAD.
func Detect(dir string) (*Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("revision: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("revision: resolving HEAD: %w", err)
	}

	info := &Info{SHA: head.Hash().String()}
	info.Short = shorten(info.SHA)
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	tags, err := repo.Tags()
	if err != nil {
		return info, nil
	}
	errFound := errors.New("found")
	_ = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		// Annotated tags point at a tag object, not the commit.
		if obj, err := repo.TagObject(target); err == nil {
			target = obj.Target
		}
		if target == head.Hash() {
			info.Tag = ref.Name().Short()
			return errFound
		}
		return nil
	})
	return info, nil
}

// Resolve returns override when set, else the SHA of the repository at dir,
// else the CI-provided commit, else "".
func Resolve(dir, override string) string {
	if override != "" {
		return override
	}
	if info, err := Detect(dir); err == nil {
		return info.SHA
	}
	for _, key := range []string{"CI_COMMIT_SHA", "GITHUB_SHA"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func shorten(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
