package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleTOML = `
log_level = "debug"
quiet_interval = "750ms"
rate_limit = 20.0
rate_burst = 4

[ignore]
patterns = ["**/*.tmp"]
suffixes = [".swp"]

[[roots]]
path = "/proj"
[roots.watcher]
files = "**/*"
auto_upload = true
auto_delete = true
[roots.remote]
kind = "mirror"
target = "/backup/proj"

[[roots]]
path = "/site"
[roots.watcher]
files = false
auto_upload = true
[roots.remote]
kind = "s3"
bucket = "site-assets"
prefix = "www"

[[roots]]
path = "/notes"
[roots.remote]
kind = "minio"
bucket = "notes"
endpoint = "localhost:9000"
`

const sampleYAML = `
listen: ""
roots:
  - path: /proj
    watcher:
      files: "src/**"
      auto_upload: true
    remote:
      target: /backup/proj
  - path: /off
    watcher:
      files: false
      auto_delete: true
    remote:
      target: /backup/off
  - path: /empty
    watcher:
      files: ""
      auto_upload: true
    remote:
      target: /backup/empty
  - path: /implicit
    watcher:
      auto_upload: true
    remote:
      target: /backup/implicit
`

func TestParseTOML(t *testing.T) {
	settings, err := Parse([]byte(sampleTOML), FormatTOML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := settings.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if settings.LogLevel != "debug" || settings.QuietInterval != 750*time.Millisecond {
		t.Fatalf("unexpected top-level settings %+v", settings)
	}
	if settings.Listen != DefaultListen {
		t.Fatalf("expected default listen, got %q", settings.Listen)
	}
	if settings.Source("quiet_interval") != SourceFile || settings.Source("listen") != SourceDefault {
		t.Fatalf("unexpected sources %v", settings.Sources)
	}
	if len(settings.Roots) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(settings.Roots))
	}

	proj := settings.Roots[0]
	if proj.Watcher == nil || proj.Watcher.Files != Glob("**/*") || !proj.Watcher.Active() {
		t.Fatalf("unexpected /proj watcher %+v", proj.Watcher)
	}

	site := settings.Roots[1]
	if !site.Watcher.Files.IsDisabled() || site.Watcher.Active() {
		t.Fatalf("expected /site files disabled, got %+v", site.Watcher)
	}
	if site.Remote.Kind != RemoteS3 {
		t.Fatalf("expected s3 remote, got %q", site.Remote.Kind)
	}

	notes := settings.Roots[2]
	if notes.Watcher != nil || notes.Watcher.Active() {
		t.Fatalf("expected /notes without watcher, got %+v", notes.Watcher)
	}
}

func TestParseYAMLPatterns(t *testing.T) {
	settings, err := Parse([]byte(sampleYAML), FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := settings.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if settings.Listen != "" || settings.Source("listen") != SourceFile {
		t.Fatalf("expected listen disabled by the file, got %q", settings.Listen)
	}
	if got := settings.Roots[0].Watcher.Files; got != Glob("src/**") {
		t.Fatalf("unexpected /proj pattern %+v", got)
	}
	if settings.Roots[0].Remote.Kind != RemoteMirror {
		t.Fatalf("expected mirror default, got %q", settings.Roots[0].Remote.Kind)
	}
	if got := settings.Roots[1].Watcher.Files; got != DisabledPattern() {
		t.Fatalf("expected false to disable, got %+v", got)
	}
	if !settings.Roots[2].Watcher.Files.IsDisabled() {
		t.Fatalf("expected empty string to disable")
	}
	if got := settings.Roots[3].Watcher.Files; got != Glob(DefaultFilesPattern) {
		t.Fatalf("expected omitted files to default, got %+v", got)
	}
}

func TestParseYAMLRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("roots:\n  - path: /p\n    bogus: 1\n"), FormatYAML); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestParseTOMLRecordsUnknownKeys(t *testing.T) {
	settings, err := Parse([]byte("bogus = 1\n"), FormatTOML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !slices.Contains(settings.Unknown, "bogus") {
		t.Fatalf("expected bogus in unknown keys, got %v", settings.Unknown)
	}
}

func TestParseRejectsBadPatternType(t *testing.T) {
	if _, err := Parse([]byte("[[roots]]\npath = \"/p\"\n[roots.watcher]\nfiles = 3\n"), FormatTOML); err == nil {
		t.Fatalf("expected toml error for numeric files")
	}
	if _, err := Parse([]byte("roots:\n  - path: /p\n    watcher:\n      files: [a]\n"), FormatYAML); err == nil {
		t.Fatalf("expected yaml error for list files")
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	settings := Defaults()
	settings.QuietInterval = 100 * time.Millisecond
	settings.LogLevel = "loud"
	settings.Roots = []RootSettings{
		{Path: "relative", Remote: RemoteSettings{Kind: RemoteMirror, Target: "/t"}},
		{Path: "/dup", Remote: RemoteSettings{Kind: "ftp"}},
		{Path: "/dup", Remote: RemoteSettings{Kind: RemoteMinio}},
		{Path: "/glob", Watcher: &WatchConfig{Files: Glob("[a-"), AutoUpload: true}, Remote: RemoteSettings{Kind: RemoteS3, Bucket: "b"}},
	}

	err := settings.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, target := range []error{
		ErrIntervalTooShort,
		ErrInvalidSetting,
		ErrRootNotAbsolute,
		ErrUnknownRemote,
		ErrDuplicateRoot,
		ErrMissingRemoteField,
	} {
		if !errors.Is(err, target) {
			t.Fatalf("expected %v in %v", target, err)
		}
	}
	if !strings.Contains(err.Error(), "roots[3] /glob: files") {
		t.Fatalf("expected glob error to name the root, got %v", err)
	}
}

func TestLoadResolvesRelativePathsAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autosync.toml")
	payload := `
[[roots]]
path = "proj"
[roots.watcher]
auto_upload = true
[roots.remote]
target = "mirror"
`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := map[string]string{
		"AUTOSYNC_LOG_LEVEL":      "warning",
		"AUTOSYNC_LISTEN":         ":9000",
		"AUTOSYNC_QUIET_INTERVAL": "2s",
	}
	settings, err := LoadWithEnv(path, func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	rootPath := filepath.Join(absDir, "proj")
	if paths := settings.RootPaths(); !slices.Equal(paths, []string{rootPath}) {
		t.Fatalf("unexpected roots %v", paths)
	}
	root, ok := settings.Root(rootPath)
	if !ok {
		t.Fatalf("expected root %s", rootPath)
	}
	if want := filepath.Join(absDir, "mirror"); root.Remote.Target != want {
		t.Fatalf("expected target %s, got %s", want, root.Remote.Target)
	}
	if settings.LogLevel != "warning" || settings.Listen != ":9000" || settings.QuietInterval != 2*time.Second {
		t.Fatalf("expected env overrides, got level=%q listen=%q interval=%s", settings.LogLevel, settings.Listen, settings.QuietInterval)
	}
	if settings.Source("quiet_interval") != SourceEnv {
		t.Fatalf("expected quiet_interval from env")
	}
	if settings.Path != path {
		t.Fatalf("expected path %s, got %s", path, settings.Path)
	}
}

func TestLoadRejectsShortIntervalFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autosync.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	intervalEnv := func(value string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			if key == "AUTOSYNC_QUIET_INTERVAL" {
				return value, true
			}
			return "", false
		}
	}
	if _, err := LoadWithEnv(path, intervalEnv("100ms")); !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("expected ErrIntervalTooShort, got %v", err)
	}
	if _, err := LoadWithEnv(path, intervalEnv("soon")); err == nil {
		t.Fatalf("expected parse error for bad duration")
	}
}

func TestFormatFor(t *testing.T) {
	for path, expected := range map[string]Format{
		"a.toml": FormatTOML,
		"a.yaml": FormatYAML,
		"a.YML":  FormatYAML,
	} {
		format, err := FormatFor(path)
		if err != nil {
			t.Fatalf("format for %s: %v", path, err)
		}
		if format != expected {
			t.Fatalf("format for %s: expected %s, got %s", path, expected, format)
		}
	}
	if _, err := FormatFor("a.json"); err == nil {
		t.Fatalf("expected error for json")
	}
}
