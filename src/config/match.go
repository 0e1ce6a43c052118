package config

import (
	"regexp"
	"strings"
)

// MatchPatterns evaluates a list of patterns against a value (OR logic).
// Empty list = always allowed (no filter).
//
// Exclude patterns (!) are checked first; any match rejects the value. Then
// include patterns are checked. If only exclude patterns exist and none
// matched, the value is allowed.
func MatchPatterns(patterns []string, value string) bool {
	if len(patterns) == 0 {
		return true
	}

	var includes, excludes []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			excludes = append(excludes, p[1:])
		} else {
			includes = append(includes, p)
		}
	}

	for _, p := range excludes {
		if matchPattern(p, value) {
			return false
		}
	}
	if len(includes) == 0 {
		return true
	}
	for _, p := range includes {
		if matchPattern(p, value) {
			return true
		}
	}
	return false
}

// matchPattern treats an invalid regex as a literal.
func matchPattern(pattern, value string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return pattern == value
	}
	return re.MatchString(value)
}
