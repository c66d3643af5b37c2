// Package buildinfo exposes the binary version.
package buildinfo

import (
	"os"
	"runtime/debug"
)

// Version is set at link time with -ldflags "-X backendd/internal/buildinfo.Version=...".
var Version = ""

// Resolve returns Version, then $VERSION, then the module version, then "-".
func Resolve() string {
	if Version != "" {
		return Version
	}
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "-"
}
