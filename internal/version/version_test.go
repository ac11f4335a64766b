package version

import (
	"strings"
	"testing"
)

func TestGetParsesVersion(t *testing.T) {
	previousVersion := Version
	previousBuilt := Built
	previousCommit := GitCommit

	Version = "v1.2.3"
	Built = "2026-01-11T12:34:56Z"
	GitCommit = "abc123def4567890"

	t.Cleanup(func() {
		Version = previousVersion
		Built = previousBuilt
		GitCommit = previousCommit
	})

	info := Get()
	if info.Major != 1 || info.Minor != 2 || info.Patch != 3 {
		t.Fatalf("expected 1.2.3, got %d.%d.%d", info.Major, info.Minor, info.Patch)
	}
	if info.GitCommit != "abc123def4567890" {
		t.Fatalf("expected git commit to be preserved, got %q", info.GitCommit)
	}
	text := info.String()
	if !strings.HasPrefix(text, "autosync v1.2.3 (abc123def456) built 2026-01-11T12:34:56Z") {
		t.Fatalf("unexpected version string %q", text)
	}
}

func TestParseSemver(t *testing.T) {
	cases := map[string][3]int{
		"dev":        {0, 0, 0},
		"1.4":        {1, 4, 0},
		"v2.0.1-rc1": {2, 0, 1},
		"3.1.4+meta": {3, 1, 4},
	}
	for input, expected := range cases {
		major, minor, patch := parseSemver(input)
		if [3]int{major, minor, patch} != expected {
			t.Fatalf("parseSemver(%q) = %d.%d.%d, want %v", input, major, minor, patch, expected)
		}
	}
}
