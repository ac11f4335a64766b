package app

import (
	"errors"
	"strings"

	"autosync/internal/config"
	"autosync/internal/logging"
	"autosync/internal/watcher"
)

// Loader reads settings from a path. config.Load in production.
type Loader func(path string) (config.Settings, error)

// WatchConfig reloads the settings file whenever it changes and applies the
// result. A file that fails to load or validate leaves the running roots
// untouched.
func (s *Service) WatchConfig(path string, load Loader) error {
	if path == "" {
		return errors.New("config path is required")
	}
	if load == nil {
		load = config.Load
	}
	reload, err := watcher.WatchFile(path, watcher.Options{
		Logger:  s.logger,
		Metrics: s.metrics,
	}, func(event watcher.Event) {
		if event.Op == watcher.OpDeleted {
			s.logger.Warn("config file removed, keeping current settings", map[string]string{
				logging.FieldPath: event.Path,
			})
			return
		}
		s.reloadFrom(path, load)
	})
	if err != nil {
		return BuildError{Stage: StageWatch, Root: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = reload.Close()
		return errors.New("service is closed")
	}
	if s.reload != nil {
		_ = s.reload.Close()
	}
	s.reload = reload
	return nil
}

func (s *Service) reloadFrom(path string, load Loader) {
	settings, err := load(path)
	if err != nil {
		s.logger.ErrorErr(err, "config reload rejected", map[string]string{
			logging.FieldPath: path,
		})
		return
	}
	if err := s.Apply(settings); err != nil {
		s.logger.ErrorErr(err, "config reload incomplete", map[string]string{
			logging.FieldPath: path,
		})
		return
	}
	s.logger.Info("config reloaded", map[string]string{
		logging.FieldPath: path,
		"roots":           strings.Join(settings.RootPaths(), ","),
	})
}
