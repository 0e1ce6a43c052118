// Package toolver gates external tools on a minimum version.
//
// Tools print their versions in free-form banners ("Android Debug Bridge
// version 1.0.41", "gsutil version: 5.27"). Extract finds the first
// version-looking token and Check evaluates it against a semver constraint.
package toolver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

// versionRe matches 1 to 3 dotted numeric components, optionally v-prefixed.
var versionRe = regexp.MustCompile(`\bv?(\d+(?:\.\d+){0,2})\b`)

// Extract returns the first version found in a tool's version banner.
func Extract(banner string) (*masterminds.Version, error) {
	for _, line := range strings.Split(banner, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, m := range versionRe.FindAllStringSubmatch(line, -1) {
			// Bare integers are too ambiguous (build numbers, years).
			if !strings.Contains(m[1], ".") {
				continue
			}
			v, err := masterminds.NewVersion(m[1])
			if err == nil {
				return v, nil
			}
		}
	}
	return nil, fmt.Errorf("no version found in %q", strings.TrimSpace(banner))
}

// Check verifies that the version in banner satisfies constraint.
// An empty constraint always passes.
func Check(tool, banner, constraint string) (*masterminds.Version, error) {
	if strings.TrimSpace(constraint) == "" {
		return nil, nil
	}
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid version constraint %q: %w", tool, constraint, err)
	}
	v, err := Extract(banner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tool, err)
	}
	if !c.Check(v) {
		return v, fmt.Errorf("%s: version %s does not satisfy %q", tool, v, constraint)
	}
	return v, nil
}
