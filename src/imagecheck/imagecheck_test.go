package imagecheck

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/bmp"
)

func writeImages(t *testing.T, dir string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	f, err := os.Create(filepath.Join(dir, "tile_0.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	g, err := os.Create(filepath.Join(dir, "tile_1.bmp"))
	if err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(g, img); err != nil {
		t.Fatal(err)
	}
	g.Close()
}

func TestVerifyDecodesFormats(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "TIMESTAMP"), []byte("1700000000"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Verify(dir)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := []Image{
		{Name: "tile_0.png", Format: "png", Width: 4, Height: 3},
		{Name: "tile_1.bmp", Format: "bmp", Width: 4, Height: 3},
	}
	if diff := cmp.Diff(want, r.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"TIMESTAMP"}, r.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	if !r.OK() {
		t.Error("report should be OK")
	}
}

func TestVerifyFlagsCorruptImage(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Verify(dir)
	if err == nil || !strings.Contains(err.Error(), "broken.png") {
		t.Fatalf("err = %v", err)
	}
	if r.OK() || len(r.Images) != 2 {
		t.Errorf("report = %+v", r)
	}
}

func TestVerifyEmptyDir(t *testing.T) {
	_, err := Verify(t.TempDir())
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("err = %v, want ErrNoImages", err)
	}
}
