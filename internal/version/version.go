// Package version reports the delight-acp build version.
//
// CommitHash should be set with -ldflags during compilation.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// CommitHash stores the git commit hash of this build.
var CommitHash string

// AgentName is the name the binary reports to protocol clients.
const AgentName = "delight-acp"

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	// appPreRelease may only contain [0-9A-Za-z-].
	appPreRelease = ""
)

// Version returns the semantic version string.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if pre := normalize(appPreRelease); pre != "" {
		version += "-" + pre
	}
	return version
}

// RichVersion returns the version along with the commit hash, falling back to
// the VCS revision embedded by the Go toolchain.
func RichVersion() string {
	commit := strings.TrimSpace(CommitHash)
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	if commit == "" {
		return Version()
	}
	return fmt.Sprintf("%s commit_hash=%s", Version(), commit)
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
