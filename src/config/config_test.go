package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Base != DefaultStorageBase || cfg.Render.TileX != 256 || cfg.Path != "" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if _, err := Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "stagehand.yml", `
step:
  attempts: 2
  timeout: 15m
  no_output_timeout: 120
steps:
  render_pictures:
    timeout: 50m
storage:
  base: gs://rmistry
  acl: public-read
device:
  serial: 0123abcd
  has_root: true
render:
  tile_x: 512
history:
  retention: 10
args:
  configuration: Release
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != p {
		t.Errorf("Path = %q", cfg.Path)
	}
	if *cfg.Step.Attempts != 2 || cfg.Step.Timeout.D() != 15*time.Minute || cfg.Step.NoOutputTimeout.D() != 2*time.Minute {
		t.Errorf("step = %+v", cfg.Step)
	}
	render := cfg.StepFor("render_pictures")
	if render.Timeout.D() != 50*time.Minute || *render.Attempts != 2 {
		t.Errorf("render step = attempts %d timeout %s", *render.Attempts, render.Timeout.D())
	}
	if cfg.StepFor("compile").Timeout.D() != 15*time.Minute {
		t.Error("compile should inherit the global step section")
	}
	if cfg.Render.TileX != 512 || cfg.Render.TileY != 256 {
		t.Errorf("tile = %dx%d, defaults should survive partial sections", cfg.Render.TileX, cfg.Render.TileY)
	}
	if cfg.History.Retention.KeepLast != 10 {
		t.Errorf("retention = %+v", cfg.History.Retention)
	}
	if diff := cmp.Diff(map[string]string{"configuration": "Release"}, cfg.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "stagehand.toml", `
[step]
attempts = 3
timeout = "90s"

[steps.compile]
no_output_timeout = "0s"

[storage]
base = "file:///srv/artifacts"

[history.retention]
keep_last = 5
keep_daily = 7
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	compile := cfg.StepFor("compile")
	if *compile.Attempts != 3 || compile.Timeout.D() != 90*time.Second {
		t.Errorf("compile = %+v", compile)
	}
	if compile.NoOutputTimeout == nil || compile.NoOutputTimeout.D() != 0 {
		t.Error("explicit zero no_output_timeout should be kept as set")
	}
	if cfg.Storage.Base != "file:///srv/artifacts" {
		t.Errorf("base = %q", cfg.Storage.Base)
	}
	want := RetentionPolicy{KeepLast: 5, KeepDaily: 7}
	if diff := cmp.Diff(want, cfg.History.Retention); diff != "" {
		t.Errorf("retention mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.yml", "step:\n  timeout: soon\n")
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	zero, neg := 0, Ptr(-time.Second)
	cfg := defaults()
	cfg.Step.Attempts = &zero
	cfg.Steps["render_pictures"] = StepConfig{Timeout: neg}
	cfg.Storage.ACL = "world-writable"
	cfg.Storage.Base = "chromium-skia-gm/playback"
	cfg.Render.TileY = 0

	_, err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"step.attempts", "steps.render_pictures.timeout", "storage.acl", "storage.base", "tile size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%s", want, err)
		}
	}
}

func TestValidateWarnsRootWithoutSerial(t *testing.T) {
	cfg := defaults()
	cfg.Device.HasRoot = true
	warnings, err := Validate(cfg)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestMatchPatterns(t *testing.T) {
	tests := []struct {
		patterns []string
		value    string
		want     bool
	}{
		{nil, "compile", true},
		{[]string{"^render"}, "render_pictures", true},
		{[]string{"^render"}, "compile", false},
		{[]string{"!^compile$"}, "install", true},
		{[]string{"!^compile$"}, "compile", false},
		{[]string{".*", "!install"}, "install", false},
		{[]string{"[bad"}, "[bad", true},
	}
	for _, tt := range tests {
		if got := MatchPatterns(tt.patterns, tt.value); got != tt.want {
			t.Errorf("MatchPatterns(%v, %q) = %v, want %v", tt.patterns, tt.value, got, tt.want)
		}
	}
}
