package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sofmeright/stagehand/src/storage"
)

// Validate checks a loaded Config. Returns warnings (soft issues) and a hard
// error listing every invalid setting.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string

	errs = append(errs, validateStep("step", cfg.Step)...)
	names := make([]string, 0, len(cfg.Steps))
	for name := range cfg.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		errs = append(errs, validateStep("steps."+name, cfg.Steps[name])...)
	}

	if cfg.Storage.Base != "" {
		if _, perr := storage.ParseLocation(cfg.Storage.Base); perr != nil {
			errs = append(errs, fmt.Sprintf("storage.base: %v", perr))
		}
	}
	if !storage.ACL(cfg.Storage.ACL).Valid() {
		errs = append(errs, fmt.Sprintf("storage.acl: unknown canned ACL %q", cfg.Storage.ACL))
	}

	if cfg.Render.TileX <= 0 || cfg.Render.TileY <= 0 {
		errs = append(errs, fmt.Sprintf("render: tile size must be positive, got %dx%d", cfg.Render.TileX, cfg.Render.TileY))
	}
	if cfg.Render.Binary == "" {
		errs = append(errs, "render.binary: required")
	}

	if cfg.Device.HasRoot && cfg.Device.Serial == "" {
		warnings = append(warnings, "device.has_root is set but device.serial is empty; runs target the host")
	}
	if !cfg.History.Disabled && cfg.History.Path == "" {
		errs = append(errs, "history.path: required unless history.disabled")
	}
	if r := cfg.History.Retention; r.KeepLast < 0 || r.KeepDaily < 0 || r.KeepWeekly < 0 || r.KeepMonthly < 0 || r.KeepYearly < 0 {
		errs = append(errs, "history.retention: values must not be negative")
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return warnings, nil
}

func validateStep(path string, s StepConfig) []string {
	var errs []string
	if s.Attempts != nil && *s.Attempts < 1 {
		errs = append(errs, fmt.Sprintf("%s.attempts: must be at least 1, got %d", path, *s.Attempts))
	}
	if s.Timeout != nil && *s.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("%s.timeout: must not be negative", path))
	}
	if s.NoOutputTimeout != nil && *s.NoOutputTimeout < 0 {
		errs = append(errs, fmt.Sprintf("%s.no_output_timeout: must not be negative", path))
	}
	return errs
}
