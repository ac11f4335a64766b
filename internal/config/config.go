// Package config loads the autosync settings file and builds the inputs of
// the sync engine: one WatchConfig and one remote per watched root.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"autosync/internal/syncqueue"
	"autosync/internal/watcher"
)

const (
	DefaultListen          = "127.0.0.1:7733"
	DefaultLogLevel        = "info"
	DefaultMaxWatches      = 8192
	DefaultTransferTimeout = syncqueue.DefaultTransferTimeout
)

type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
)

// Settings is the whole configuration file.
type Settings struct {
	LogLevel        string         `toml:"log_level" yaml:"log_level"`
	Listen          string         `toml:"listen" yaml:"listen"`
	QuietInterval   time.Duration  `toml:"quiet_interval" yaml:"quiet_interval"`
	WatchDebounce   time.Duration  `toml:"watch_debounce" yaml:"watch_debounce"`
	TransferTimeout time.Duration  `toml:"transfer_timeout" yaml:"transfer_timeout"`
	RateLimit       float64        `toml:"rate_limit" yaml:"rate_limit"`
	RateBurst       int            `toml:"rate_burst" yaml:"rate_burst"`
	MaxWatches      int            `toml:"max_watches" yaml:"max_watches"`
	Ignore          IgnoreSettings `toml:"ignore" yaml:"ignore"`
	Roots           []RootSettings `toml:"roots" yaml:"roots"`

	// Path is the file the settings were read from, if any.
	Path    string            `toml:"-" yaml:"-"`
	Sources map[string]Source `toml:"-" yaml:"-"`
	// Unknown lists keys present in a TOML file that matched no setting.
	Unknown []string `toml:"-" yaml:"-"`
}

type IgnoreSettings struct {
	// Names replaces the default ignored names when set.
	Names    []string `toml:"names" yaml:"names"`
	Patterns []string `toml:"patterns" yaml:"patterns"`
	Suffixes []string `toml:"suffixes" yaml:"suffixes"`
}

// RootSettings describes one watched root and where its files go.
type RootSettings struct {
	Path    string         `toml:"path" yaml:"path"`
	Watcher *WatchConfig   `toml:"watcher" yaml:"watcher"`
	Remote  RemoteSettings `toml:"remote" yaml:"remote"`
}

// WatchConfig controls whether a root is watched and which changes are
// synced. A nil WatchConfig leaves the root alone.
type WatchConfig struct {
	Files      Pattern `toml:"files" yaml:"files"`
	AutoUpload bool    `toml:"auto_upload" yaml:"auto_upload"`
	AutoDelete bool    `toml:"auto_delete" yaml:"auto_delete"`
}

// Active reports whether the config asks for a watcher at all.
func (cfg *WatchConfig) Active() bool {
	if cfg == nil {
		return false
	}
	return !cfg.Files.IsDisabled() && (cfg.AutoUpload || cfg.AutoDelete)
}

type RemoteKind string

const (
	RemoteMirror RemoteKind = "mirror"
	RemoteS3     RemoteKind = "s3"
	RemoteMinio  RemoteKind = "minio"
)

type RemoteSettings struct {
	Kind RemoteKind `toml:"kind" yaml:"kind"`
	// Target is the destination directory of a mirror remote.
	Target    string `toml:"target" yaml:"target"`
	Bucket    string `toml:"bucket" yaml:"bucket"`
	Prefix    string `toml:"prefix" yaml:"prefix"`
	Region    string `toml:"region" yaml:"region"`
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	PathStyle bool   `toml:"path_style" yaml:"path_style"`
	Secure    bool   `toml:"secure" yaml:"secure"`
}

// Defaults returns settings with no roots.
func Defaults() Settings {
	return Settings{
		LogLevel:        DefaultLogLevel,
		Listen:          DefaultListen,
		QuietInterval:   syncqueue.DefaultQuietInterval,
		WatchDebounce:   watcher.DefaultDebounce,
		TransferTimeout: DefaultTransferTimeout,
		RateBurst:       1,
		MaxWatches:      DefaultMaxWatches,
		Sources:         make(map[string]Source),
	}
}

// FormatFor picks the decoder from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (Settings, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup func(string) (string, bool)) (Settings, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Settings{}, err
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	settings, err := Parse(payload, format)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	settings.Path = path
	if err := settings.resolveRoots(filepath.Dir(path)); err != nil {
		return Settings{}, err
	}
	if err := settings.applyEnv(lookup); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Parse decodes payload on top of the defaults without validating it.
func Parse(payload []byte, format Format) (Settings, error) {
	settings := Defaults()
	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(payload), &settings)
		if err != nil {
			return Settings{}, err
		}
		for _, key := range meta.Undecoded() {
			settings.Unknown = append(settings.Unknown, key.String())
		}
		for _, key := range meta.Keys() {
			if len(key) == 1 {
				settings.Sources[key[0]] = SourceFile
			}
		}
	case FormatYAML:
		var present map[string]any
		if err := yaml.Unmarshal(payload, &present); err != nil {
			return Settings{}, err
		}
		decoder := yaml.NewDecoder(bytes.NewReader(payload))
		decoder.KnownFields(true)
		if err := decoder.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
			return Settings{}, err
		}
		for key := range present {
			settings.Sources[key] = SourceFile
		}
	default:
		return Settings{}, fmt.Errorf("unsupported config format %q", format)
	}
	if settings.Sources == nil {
		settings.Sources = make(map[string]Source)
	}
	settings.fillRootDefaults()
	return settings, nil
}

func (settings *Settings) fillRootDefaults() {
	for i := range settings.Roots {
		root := &settings.Roots[i]
		if root.Watcher != nil && !root.Watcher.Files.Disabled && root.Watcher.Files.Glob == "" {
			root.Watcher.Files = Glob(DefaultFilesPattern)
		}
		if root.Remote.Kind == "" {
			root.Remote.Kind = RemoteMirror
		}
	}
}

// resolveRoots makes relative root paths and mirror targets relative to the
// directory holding the config file.
func (settings *Settings) resolveRoots(base string) error {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return err
	}
	for i := range settings.Roots {
		root := &settings.Roots[i]
		if root.Path == "" {
			continue
		}
		root.Path = expandHome(root.Path)
		if !filepath.IsAbs(root.Path) {
			root.Path = filepath.Join(absBase, root.Path)
		}
		root.Path = filepath.Clean(root.Path)
		if root.Remote.Kind == RemoteMirror && root.Remote.Target != "" {
			target := expandHome(root.Remote.Target)
			if !filepath.IsAbs(target) {
				target = filepath.Join(absBase, target)
			}
			root.Remote.Target = filepath.Clean(target)
		}
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func (settings *Settings) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	if raw, ok := lookup("AUTOSYNC_LOG_LEVEL"); ok && strings.TrimSpace(raw) != "" {
		settings.LogLevel = strings.TrimSpace(raw)
		settings.Sources["log_level"] = SourceEnv
	}
	if raw, ok := lookup("AUTOSYNC_LISTEN"); ok {
		settings.Listen = strings.TrimSpace(raw)
		settings.Sources["listen"] = SourceEnv
	}
	if raw, ok := lookup("AUTOSYNC_QUIET_INTERVAL"); ok && strings.TrimSpace(raw) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid AUTOSYNC_QUIET_INTERVAL: %w", err)
		}
		settings.QuietInterval = parsed
		settings.Sources["quiet_interval"] = SourceEnv
	}
	return nil
}

// Root returns the settings of the root at path.
func (settings Settings) Root(path string) (RootSettings, bool) {
	clean := filepath.Clean(path)
	for _, root := range settings.Roots {
		if root.Path == clean {
			return root, true
		}
	}
	return RootSettings{}, false
}

// RootPaths returns every configured root, sorted.
func (settings Settings) RootPaths() []string {
	paths := make([]string, 0, len(settings.Roots))
	for _, root := range settings.Roots {
		paths = append(paths, root.Path)
	}
	sort.Strings(paths)
	return paths
}

// Source reports where a top-level setting came from.
func (settings Settings) Source(key string) Source {
	if source, ok := settings.Sources[key]; ok {
		return source
	}
	return SourceDefault
}
