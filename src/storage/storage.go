// Package storage is a thin capability over a cloud object-storage bucket.
//
// Directories are addressed by Location (bucket + relative path). Every write
// carries an explicit ACL. Two clients are provided: GSUtil, which shells out
// to gsutil through a runner.Runner, and Local, which maps file:// bases onto
// a directory tree.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotExist is returned when an object or prefix is absent.
var ErrNotExist = errors.New("storage object does not exist")

// ACL is a canned access-control setting applied on write.
type ACL string

const (
	ACLPrivate                ACL = "private"
	ACLPublicRead             ACL = "public-read"
	ACLPublicReadWrite        ACL = "public-read-write"
	ACLProjectPrivate         ACL = "project-private"
	ACLAuthenticatedRead      ACL = "authenticated-read"
	ACLBucketOwnerRead        ACL = "bucket-owner-read"
	ACLBucketOwnerFullControl ACL = "bucket-owner-full-control"
)

// Valid reports whether a is a known canned ACL.
func (a ACL) Valid() bool {
	switch a {
	case ACLPrivate, ACLPublicRead, ACLPublicReadWrite, ACLProjectPrivate,
		ACLAuthenticatedRead, ACLBucketOwnerRead, ACLBucketOwnerFullControl:
		return true
	}
	return false
}

// Location identifies a directory (or object) in a bucket.
// Bucket keeps its scheme, e.g. "gs://chromium-skia-gm" or "file:///srv/cache".
type Location struct {
	Bucket string
	Path   string
}

// ParseLocation splits "gs://bucket/some/dir" into bucket and path.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" || rest == "" {
		return Location{}, fmt.Errorf("storage: %q is not a <scheme>://<bucket>/<path> location", raw)
	}
	if scheme == "file" {
		// file:///abs/root keeps the whole path as the bucket root.
		return Location{Bucket: "file://" + strings.TrimRight(rest, "/")}, nil
	}
	bucket, p, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("storage: %q has no bucket", raw)
	}
	return Location{Bucket: scheme + "://" + bucket, Path: strings.Trim(p, "/")}, nil
}

// Scheme returns the URL scheme of the bucket ("gs", "file").
func (l Location) Scheme() string {
	scheme, _, _ := strings.Cut(l.Bucket, "://")
	return scheme
}

// Join returns a location nested below l.
func (l Location) Join(elem ...string) Location {
	parts := append([]string{l.Path}, elem...)
	return Location{Bucket: l.Bucket, Path: strings.Trim(path.Join(parts...), "/")}
}

// URL renders the location as <bucket>/<path>.
func (l Location) URL() string {
	if l.Path == "" {
		return l.Bucket
	}
	return strings.TrimRight(l.Bucket, "/") + "/" + l.Path
}

func (l Location) String() string { return l.URL() }

// Client is the capability set the sync engine and steps need from storage.
type Client interface {
	// List returns the names of objects directly below loc.
	List(ctx context.Context, loc Location) ([]string, error)
	// Exists reports whether any object exists at or below loc.
	Exists(ctx context.Context, loc Location) (bool, error)
	// CopyFrom downloads every object below src into localDir.
	CopyFrom(ctx context.Context, src Location, localDir string) error
	// CopyTo uploads the contents of localDir below dst.
	CopyTo(ctx context.Context, localDir string, dst Location, acl ACL) error
	// Delete removes loc and everything below it.
	Delete(ctx context.Context, loc Location) error
	// ReadObject returns the content of a single object, or ErrNotExist.
	ReadObject(ctx context.Context, loc Location) ([]byte, error)
	// WriteObject stores data as a single object.
	WriteObject(ctx context.Context, loc Location, data []byte, acl ACL) error
}
