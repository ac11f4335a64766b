package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"autosync/internal/classify"
	"autosync/internal/logging"
	"autosync/internal/syncqueue"
)

var (
	ErrIntervalTooShort   = syncqueue.ErrIntervalTooShort
	ErrRootNotAbsolute    = errors.New("root path must be absolute")
	ErrDuplicateRoot      = errors.New("root is configured more than once")
	ErrUnknownRemote      = errors.New("unknown remote kind")
	ErrMissingRemoteField = errors.New("remote setting is required")
	ErrInvalidSetting     = errors.New("invalid setting")
)

// Validate reports every problem at once, each naming the offending field.
func (settings Settings) Validate() error {
	var errs []error

	if _, ok := logging.ParseLevel(settings.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q: %w", settings.LogLevel, ErrInvalidSetting))
	}
	if settings.QuietInterval < syncqueue.MinQuietInterval {
		errs = append(errs, fmt.Errorf("quiet_interval %s (minimum %s): %w",
			settings.QuietInterval, syncqueue.MinQuietInterval, ErrIntervalTooShort))
	}
	if settings.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("watch_debounce %s: %w", settings.WatchDebounce, ErrInvalidSetting))
	}
	if settings.TransferTimeout < 0 {
		errs = append(errs, fmt.Errorf("transfer_timeout %s: %w", settings.TransferTimeout, ErrInvalidSetting))
	}
	if settings.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit %v: %w", settings.RateLimit, ErrInvalidSetting))
	}
	if settings.RateLimit > 0 && settings.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate_burst %d must be at least 1: %w", settings.RateBurst, ErrInvalidSetting))
	}
	if settings.MaxWatches < 0 {
		errs = append(errs, fmt.Errorf("max_watches %d: %w", settings.MaxWatches, ErrInvalidSetting))
	}
	if _, err := classify.New(settings.Ignore.ClassifyOptions()); err != nil {
		errs = append(errs, fmt.Errorf("ignore: %w", err))
	}

	seen := make(map[string]int, len(settings.Roots))
	for index, root := range settings.Roots {
		label := fmt.Sprintf("roots[%d]", index)
		if root.Path != "" {
			label = fmt.Sprintf("roots[%d] %s", index, root.Path)
		}
		switch {
		case root.Path == "":
			errs = append(errs, fmt.Errorf("%s: path is required: %w", label, ErrInvalidSetting))
		case !filepath.IsAbs(root.Path):
			errs = append(errs, fmt.Errorf("%s: %w", label, ErrRootNotAbsolute))
		}
		if previous, dup := seen[root.Path]; dup && root.Path != "" {
			errs = append(errs, fmt.Errorf("%s: also roots[%d]: %w", label, previous, ErrDuplicateRoot))
		}
		seen[root.Path] = index

		if root.Watcher != nil && !root.Watcher.Files.IsDisabled() {
			if _, err := classify.CompileMatcher(root.Watcher.Files.Glob); err != nil {
				errs = append(errs, fmt.Errorf("%s: files %q: %w", label, root.Watcher.Files.Glob, err))
			}
		}
		if err := root.Remote.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: remote: %w", label, err))
		}
	}
	return errors.Join(errs...)
}

func (remote RemoteSettings) validate() error {
	switch remote.Kind {
	case RemoteMirror:
		if remote.Target == "" {
			return fmt.Errorf("target: %w", ErrMissingRemoteField)
		}
	case RemoteS3:
		if remote.Bucket == "" {
			return fmt.Errorf("bucket: %w", ErrMissingRemoteField)
		}
	case RemoteMinio:
		var errs []error
		if remote.Bucket == "" {
			errs = append(errs, fmt.Errorf("bucket: %w", ErrMissingRemoteField))
		}
		if remote.Endpoint == "" {
			errs = append(errs, fmt.Errorf("endpoint: %w", ErrMissingRemoteField))
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("%q: %w", remote.Kind, ErrUnknownRemote)
	}
	return nil
}

// ClassifyOptions converts the ignore settings for classify.New.
func (ignore IgnoreSettings) ClassifyOptions() classify.Options {
	return classify.Options{
		IgnoredNames:    ignore.Names,
		IgnorePatterns:  ignore.Patterns,
		IgnoredSuffixes: ignore.Suffixes,
	}
}
