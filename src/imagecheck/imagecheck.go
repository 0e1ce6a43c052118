// Package imagecheck verifies that a directory of rendered outputs holds
// decodable images before they are uploaded as results or baselines.
package imagecheck

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNoImages is returned when a directory holds no image files at all.
var ErrNoImages = errors.New("no images produced")

// Image describes one decoded image header.
type Image struct {
	Name   string
	Format string
	Width  int
	Height int
}

// Report is the result of checking a directory.
type Report struct {
	Images  []Image
	Invalid map[string]error
	Skipped []string // non-image files, e.g. TIMESTAMP or json summaries
}

// OK reports whether every image decoded and at least one was found.
func (r *Report) OK() bool { return len(r.Invalid) == 0 && len(r.Images) > 0 }

var imageExts = map[string]bool{
	".png": true, ".bmp": true, ".tif": true, ".tiff": true,
	".webp": true, ".jpg": true, ".jpeg": true, ".gif": true,
}

// IsImage reports whether name has an image file extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Dir decodes the header of every image file directly in dir.
func Dir(dir string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("imagecheck: %w", err)
	}
	r := &Report{Invalid: map[string]error{}}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !IsImage(e.Name()) {
			r.Skipped = append(r.Skipped, e.Name())
			continue
		}
		img, err := File(filepath.Join(dir, e.Name()))
		if err != nil {
			r.Invalid[e.Name()] = err
			continue
		}
		r.Images = append(r.Images, *img)
	}
	sort.Slice(r.Images, func(i, j int) bool { return r.Images[i].Name < r.Images[j].Name })
	return r, nil
}

// File decodes the header of one image.
func File(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%s: empty %s image", filepath.Base(path), format)
	}
	return &Image{Name: filepath.Base(path), Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Verify checks dir and returns an error describing every problem found.
func Verify(dir string) (*Report, error) {
	r, err := Dir(dir)
	if err != nil {
		return nil, err
	}
	if len(r.Invalid) > 0 {
		names := make([]string, 0, len(r.Invalid))
		for n := range r.Invalid {
			names = append(names, n)
		}
		sort.Strings(names)
		return r, fmt.Errorf("imagecheck: %d undecodable image(s) in %s: %s", len(names), dir, strings.Join(names, ", "))
	}
	if len(r.Images) == 0 {
		return r, fmt.Errorf("imagecheck: %s: %w", dir, ErrNoImages)
	}
	return r, nil
}
