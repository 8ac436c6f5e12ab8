// Package version holds the shellkit release and the identifier of the
// client build it serves.
//
// Build metadata (Commit, Build) should be set using -ldflags during
// compilation.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Commit is the git commit of this binary. When empty the VCS stamp of the
// Go build is used.
var Commit string

// Build identifies the deployed client bundle. Open tabs compare it with the
// version they were rendered with.
var Build string

// Development is the build id used when none was stamped.
const Development = "__development__"

// semanticAlphabet is the allowed characters of pre-release strings.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	appPreRelease = ""
)

// Version returns the semantic version of shellkit.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if pre := normalize(appPreRelease); pre != "" {
		v += "-" + pre
	}
	return v
}

// Deployed returns Build, or Development when it was not stamped.
func Deployed() string {
	if b := strings.TrimSpace(Build); b != "" {
		return b
	}
	return Development
}

// RichVersion returns the version with the commit and deployed build.
func RichVersion() string {
	parts := []string{Version()}
	if c := commit(); c != "" {
		parts = append(parts, "commit="+c)
	}
	parts = append(parts, "build="+Deployed())
	return strings.Join(parts, " ")
}

func commit() string {
	if c := strings.TrimSpace(Commit); c != "" {
		return c
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(semanticAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
