package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Local implements Client over a directory tree. Bucket "file:///srv/cache"
// maps to /srv/cache; ACLs are accepted and ignored.
type Local struct{}

func (Local) dir(loc Location) (string, error) {
	if loc.Scheme() != "file" {
		return "", fmt.Errorf("storage: local client cannot serve %s", loc)
	}
	root := strings.TrimPrefix(loc.Bucket, "file://")
	return filepath.Join(root, filepath.FromSlash(loc.Path)), nil
}

// List implements Client.
func (l Local) List(ctx context.Context, loc Location) ([]string, error) {
	dir, err := l.dir(loc)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotExist)
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists implements Client.
func (l Local) Exists(ctx context.Context, loc Location) (bool, error) {
	p, err := l.dir(loc)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// CopyFrom implements Client.
func (l Local) CopyFrom(ctx context.Context, src Location, localDir string) error {
	dir, err := l.dir(src)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", src, ErrNotExist)
	}
	return copyTree(ctx, dir, localDir)
}

// CopyTo implements Client.
func (l Local) CopyTo(ctx context.Context, localDir string, dst Location, _ ACL) error {
	dir, err := l.dir(dst)
	if err != nil {
		return err
	}
	return copyTree(ctx, localDir, dir)
}

// Delete implements Client.
func (l Local) Delete(ctx context.Context, loc Location) error {
	p, err := l.dir(loc)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}

// ReadObject implements Client.
func (l Local) ReadObject(ctx context.Context, loc Location) ([]byte, error) {
	p, err := l.dir(loc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotExist)
	}
	return data, err
}

// WriteObject implements Client.
func (l Local) WriteObject(ctx context.Context, loc Location, data []byte, _ ACL) error {
	p, err := l.dir(loc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// copyTree copies the contents of src into dst, creating dst as needed.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return CopyFile(p, target)
	})
}

// CopyFile copies a single regular file, creating parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
