package step

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Well-known argument keys.
const (
	ArgConfiguration   = "configuration"
	ArgSerial          = "serial"
	ArgHasRoot         = "has_root"
	ArgDestStorage     = "dest_storage"
	ArgDoUploadResults = "do_upload_results"
	ArgTileX           = "tile_x"
	ArgTileY           = "tile_y"
	ArgGMImageSubdir   = "gm_image_subdir"
	ArgTarget          = "target"
	ArgRevision        = "revision"
	ArgMakeFlags       = "make_flags"
)

// ErrInvalidArgs reports unusable step arguments. Like an invalid spec, it
// fails the step before any attempt runs.
var ErrInvalidArgs = errors.New("invalid step arguments")

// Args are a step's named parameters. Values are strings; typed getters
// parse on access.
type Args map[string]string

// ParseArgs parses key=value pairs.
func ParseArgs(pairs []string) (Args, error) {
	a := Args{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrInvalidArgs, p)
		}
		a[k] = v
	}
	return a, nil
}

// Merge returns a copy of a with o's entries on top.
func (a Args) Merge(o map[string]string) Args {
	out := make(Args, len(a)+len(o))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// String returns the value for key, or def when unset or empty.
func (a Args) String(key, def string) string {
	if v, ok := a[key]; ok && v != "" {
		return v
	}
	return def
}

// Bool parses key, accepting true/false, yes/no, 1/0 in any case.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1", "on":
		return true, nil
	case "false", "no", "0", "off", "none":
		return false, nil
	}
	return def, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidArgs, key, v)
}

// Int parses key as a decimal integer.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidArgs, key, v)
	}
	return n, nil
}

// Fields splits key on whitespace.
func (a Args) Fields(key string) []string {
	return strings.Fields(a[key])
}

// Keys returns the argument names, sorted.
func (a Args) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
