package flavor

import (
	"os"
	"path/filepath"
	"strings"
)

// BuildEnv is the environment handed to the external build tool. It is built
// fresh per invocation and passed explicitly; the process environment is
// never modified.
type BuildEnv struct {
	ToolDir    string // prepended to PATH (e.g. third_party/gsutil)
	BotoConfig string // BOTO_CONFIG
	SDKRoot    string // ANDROID_SDK_ROOT
	GypDefines string // GYP_DEFINES
}

// Environ renders the non-empty settings as KEY=value pairs.
func (e BuildEnv) Environ() []string {
	var env []string
	if e.ToolDir != "" {
		p := abs(e.ToolDir)
		if cur := os.Getenv("PATH"); cur != "" {
			p += string(os.PathListSeparator) + cur
		}
		env = append(env, "PATH="+p)
	}
	if e.BotoConfig != "" {
		env = append(env, "BOTO_CONFIG="+abs(e.BotoConfig))
	}
	if e.SDKRoot != "" {
		env = append(env, "ANDROID_SDK_ROOT="+e.SDKRoot)
	}
	if e.GypDefines != "" {
		env = append(env, "GYP_DEFINES="+e.GypDefines)
	}
	return env
}

func abs(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

// CompileOptions describes one compile invocation.
type CompileOptions struct {
	Target        string // make target
	Configuration string // Debug, Release
	// Device is the platform device profile for cross builds (e.g. "nexus_4").
	Device           string
	DefaultMakeFlags []string
	MakeFlags        []string
	Dir              string
	Env              BuildEnv
	// UseCCache enables ccache when it is found on PATH.
	UseCCache bool
}

func (o CompileOptions) buildType() string {
	if o.Configuration == "" {
		return "Debug"
	}
	return o.Configuration
}

// InstallOptions describes installing built artifacts onto the target.
type InstallOptions struct {
	Configuration string
	// HostBinDir holds the binaries to push (root installs).
	HostBinDir string
	Binaries   []string
	// APK is installed for intent launches on devices without root. Empty
	// selects the launcher APK of the configuration under HostBinDir.
	APK string
}

// launcherAPK is the APK to install: APK when set, else the release or
// debug launcher build under HostBinDir.
func (o InstallOptions) launcherAPK() string {
	if o.APK != "" {
		return o.APK
	}
	if o.HostBinDir == "" {
		return ""
	}
	name := "SkiaAndroid-debug.apk"
	if o.Release() {
		name = "SkiaAndroid-release.apk"
	}
	return filepath.Join(o.HostBinDir, name)
}

// Release reports whether the configuration is a release build.
func (o InstallOptions) Release() bool {
	return strings.EqualFold(o.Configuration, "Release")
}
