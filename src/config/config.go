package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigFile     = ".stagehand.yml"
	defaultTOMLConfigFile = ".stagehand.toml"

	// DefaultStorageBase is used when neither config nor arguments name one.
	DefaultStorageBase = "gs://chromium-skia-gm"
	// DefaultACL is applied to uploaded playback artifacts.
	DefaultACL = "private"
)

// Config is the top-level stagehand configuration.
type Config struct {
	Step    StepConfig            `yaml:"step" toml:"step"`
	Steps   map[string]StepConfig `yaml:"steps" toml:"steps"`
	Storage StorageConfig         `yaml:"storage" toml:"storage"`
	Device  DeviceConfig          `yaml:"device" toml:"device"`
	Compile CompileConfig         `yaml:"compile" toml:"compile"`
	Render  RenderConfig          `yaml:"render" toml:"render"`
	History HistoryConfig         `yaml:"history" toml:"history"`
	// Args are default step arguments; command-line arguments win.
	Args map[string]string `yaml:"args" toml:"args"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-" toml:"-"`
}

// StepConfig overrides supervision settings. Nil fields are unset, so an
// explicit zero timeout (which disables the bound) is distinguishable.
type StepConfig struct {
	Attempts        *int      `yaml:"attempts" toml:"attempts"`
	Timeout         *Duration `yaml:"timeout" toml:"timeout"`
	NoOutputTimeout *Duration `yaml:"no_output_timeout" toml:"no_output_timeout"`
}

// Merge returns s with every field set in o taking precedence.
func (s StepConfig) Merge(o StepConfig) StepConfig {
	if o.Attempts != nil {
		s.Attempts = o.Attempts
	}
	if o.Timeout != nil {
		s.Timeout = o.Timeout
	}
	if o.NoOutputTimeout != nil {
		s.NoOutputTimeout = o.NoOutputTimeout
	}
	return s
}

// StorageConfig configures the artifact store.
type StorageConfig struct {
	Base       string `yaml:"base" toml:"base"`
	ACL        string `yaml:"acl" toml:"acl"`
	GSUtil     string `yaml:"gsutil" toml:"gsutil"`
	BotoConfig string `yaml:"boto_config" toml:"boto_config"`
	MinVersion string `yaml:"min_gsutil_version" toml:"min_gsutil_version"`
}

// DeviceConfig configures the device target and its adb channel.
type DeviceConfig struct {
	Serial        string `yaml:"serial" toml:"serial"`
	HasRoot       bool   `yaml:"has_root" toml:"has_root"`
	ADB           string `yaml:"adb" toml:"adb"`
	MinADBVersion string `yaml:"min_adb_version" toml:"min_adb_version"`
	AppPackage    string `yaml:"app_package" toml:"app_package"`
	AppActivity   string `yaml:"app_activity" toml:"app_activity"`
	IntentLog     string `yaml:"intent_log" toml:"intent_log"`
	BinDir        string `yaml:"bin_dir" toml:"bin_dir"`
	StopShell     bool   `yaml:"stop_shell" toml:"stop_shell"`
	APK           string `yaml:"apk" toml:"apk"`
	PlaybackRoot  string `yaml:"playback_root" toml:"playback_root"`
}

// CompileConfig configures the compile step's external build tool.
type CompileConfig struct {
	Target           string   `yaml:"target" toml:"target"`
	Device           string   `yaml:"device" toml:"device"`
	ToolDir          string   `yaml:"tool_dir" toml:"tool_dir"`
	SDKRoot          string   `yaml:"sdk_root" toml:"sdk_root"`
	GypDefines       string   `yaml:"gyp_defines" toml:"gyp_defines"`
	MakeFlags        []string `yaml:"make_flags" toml:"make_flags"`
	DefaultMakeFlags []string `yaml:"default_make_flags" toml:"default_make_flags"`
	CCache           bool     `yaml:"ccache" toml:"ccache"`
	OutDir           string   `yaml:"out_dir" toml:"out_dir"`
	Binaries         []string `yaml:"binaries" toml:"binaries"`
}

// RenderConfig configures the render_pictures step.
type RenderConfig struct {
	Binary       string `yaml:"binary" toml:"binary"`
	Device       string `yaml:"device" toml:"device"`
	TileX        int    `yaml:"tile_x" toml:"tile_x"`
	TileY        int    `yaml:"tile_y" toml:"tile_y"`
	PlaybackRoot string `yaml:"playback_root" toml:"playback_root"`
	// StorageDir is the playback directory relative to the storage base.
	StorageDir string `yaml:"storage_dir" toml:"storage_dir"`
	// VerifyImages decodes every rendered file before upload.
	VerifyImages bool `yaml:"verify_images" toml:"verify_images"`
}

// HistoryConfig configures the attempt history database.
type HistoryConfig struct {
	Path      string          `yaml:"path" toml:"path"`
	Disabled  bool            `yaml:"disabled" toml:"disabled"`
	Retention RetentionPolicy `yaml:"retention" toml:"retention"`
	// Steps limits pruning to matching step names (regex, ! negates).
	Steps []string `yaml:"steps" toml:"steps"`
}

// Load reads configuration from a YAML or TOML file, selected by extension.
// If path is empty, .stagehand.yml then .stagehand.toml are tried.
// Returns defaults if no file exists.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, candidate := range []string{defaultConfigFile, defaultTOMLConfigFile} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return defaults(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}

	cfg := defaults()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// StepFor returns the overrides for the named step: the global step section
// with the per-step section layered on top.
func (c *Config) StepFor(name string) StepConfig {
	s := c.Step
	if o, ok := c.Steps[name]; ok {
		s = s.Merge(o)
	}
	return s
}

func defaults() *Config {
	return &Config{
		Steps: map[string]StepConfig{},
		Storage: StorageConfig{
			Base:   DefaultStorageBase,
			ACL:    DefaultACL,
			GSUtil: "gsutil",
		},
		Device: DeviceConfig{
			ADB:          "adb",
			BinDir:       "/data/local/tmp/skia",
			AppPackage:   "com.skia",
			AppActivity:  ".SkiaActivity",
			StopShell:    true,
			PlaybackRoot: "/sdcard/skia_playback",
		},
		Compile: CompileConfig{
			Target:   "most",
			OutDir:   "out",
			Binaries: []string{"render_pictures"},
			CCache:   true,
		},
		Render: RenderConfig{
			Binary:       "render_pictures",
			Device:       "bitmap",
			TileX:        256,
			TileY:        256,
			PlaybackRoot: "playback",
			StorageDir:   "playback",
			VerifyImages: true,
		},
		History: HistoryConfig{
			Path: filepath.Join(".stagehand", "history.db"),
		},
		Args: map[string]string{},
	}
}
