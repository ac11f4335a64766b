// Package version reports the build metadata of the autosync binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// Set at build time with -ldflags "-X autosync/internal/version.Version=...".
var (
	Version   = "dev"
	Built     = ""
	GitCommit = ""
)

type Info struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the linked version, falling back to the VCS revision recorded
// by the Go toolchain when no commit was injected.
func Get() Info {
	major, minor, patch := parseSemver(Version)
	info := Info{
		Version:   Version,
		Major:     major,
		Minor:     minor,
		Patch:     patch,
		Built:     Built,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
	if info.GitCommit == "" {
		info.GitCommit = vcsRevision()
	}
	return info
}

func (info Info) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "autosync %s", info.Version)
	if info.GitCommit != "" {
		fmt.Fprintf(&builder, " (%s)", shortCommit(info.GitCommit))
	}
	if info.Built != "" {
		fmt.Fprintf(&builder, " built %s", info.Built)
	}
	fmt.Fprintf(&builder, " %s", info.GoVersion)
	return builder.String()
}

// parseSemver reads "v1.2.3" or "1.2.3-rc1". Missing parts are zero.
func parseSemver(value string) (int, int, int) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "v")
	if cut := strings.IndexAny(value, "-+"); cut >= 0 {
		value = value[:cut]
	}
	parts := strings.SplitN(value, ".", 3)
	numbers := [3]int{}
	for i, part := range parts {
		parsed, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0
		}
		numbers[i] = parsed
	}
	return numbers[0], numbers[1], numbers[2]
}

func vcsRevision() string {
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range build.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return ""
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
