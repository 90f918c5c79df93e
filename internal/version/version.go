// Package version reports the build version of the imgforge binary and
// carries the layer schema version used to invalidate cached layers.
package version

import "runtime/debug"

// version is set at build time via
// -ldflags "-X github.com/imgforge/imgforge/internal/version.version=v1.2.3".
var version = "local"

// Get returns the version baked in at build time. For `go install` builds
// without ldflags it falls back to the module version from build info.
func Get() string {
	if version != "local" {
		return version
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}
