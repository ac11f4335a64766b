// Package registry owns the filesystem watcher of every synced root and
// feeds their events into the sync engine.
package registry

import (
	"errors"
	"sort"
	"sync"

	"autosync/internal/config"
	"autosync/internal/logging"
	"autosync/internal/metrics"
	"autosync/internal/pathutil"
	"autosync/internal/syncqueue"
	"autosync/internal/watcher"
)

// Enqueuer accepts paths for one of the sync lanes.
type Enqueuer interface {
	Enqueue(kind syncqueue.Kind, path string) bool
}

// WatcherFactory starts a watcher over root that reports matching changes to
// callback.
type WatcherFactory interface {
	Watch(root string, pattern string, callback func(watcher.Event)) (watcher.Handle, error)
}

// WatcherFactoryFunc adapts a function to WatcherFactory.
type WatcherFactoryFunc func(root string, pattern string, callback func(watcher.Event)) (watcher.Handle, error)

func (f WatcherFactoryFunc) Watch(root string, pattern string, callback func(watcher.Event)) (watcher.Handle, error) {
	return f(root, pattern, callback)
}

// FSNotifyFactory builds fsnotify watchers sharing the given options. The
// pattern of each call replaces Options.Pattern.
func FSNotifyFactory(options watcher.Options) WatcherFactory {
	return WatcherFactoryFunc(func(root string, pattern string, callback func(watcher.Event)) (watcher.Handle, error) {
		opts := options
		opts.Pattern = pattern
		return watcher.Watch(root, opts, callback)
	})
}

type Options struct {
	Factory WatcherFactory
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

type entry struct {
	handle watcher.Handle
	config config.WatchConfig
}

// Registry keeps at most one active watcher per root.
type Registry struct {
	mu       sync.Mutex
	factory  WatcherFactory
	enqueuer Enqueuer
	logger   *logging.Logger
	metrics  *metrics.Registry
	entries  map[string]entry
}

func New(enqueuer Enqueuer, opts Options) (*Registry, error) {
	if enqueuer == nil {
		return nil, errors.New("registry enqueuer is required")
	}
	factory := opts.Factory
	if factory == nil {
		factory = FSNotifyFactory(watcher.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := opts.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	return &Registry{
		factory:  factory,
		enqueuer: enqueuer,
		logger:   logger.Component("registry"),
		metrics:  registry,
		entries:  make(map[string]entry),
	}, nil
}

// Create replaces the watcher of root according to cfg. A nil cfg changes
// nothing. Otherwise any existing watcher is disposed first, and a new one
// is only installed when cfg selects files and enables at least one lane.
func (r *Registry) Create(root string, cfg *config.WatchConfig) error {
	if cfg == nil {
		return nil
	}
	root = pathutil.Canonical(root)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.disposeLocked(root)
	if !cfg.Active() {
		r.logger.Debug("watch not installed", map[string]string{
			logging.FieldRoot: root,
			"files":           cfg.Files.String(),
		})
		return nil
	}

	settings := *cfg
	handle, err := r.factory.Watch(root, settings.Files.Glob, func(event watcher.Event) {
		r.route(settings, event)
	})
	if err != nil {
		return err
	}
	r.entries[root] = entry{handle: handle, config: settings}
	r.metrics.SetWatchersActive(len(r.entries))
	r.logger.Info("watch installed", map[string]string{
		logging.FieldRoot: root,
		"files":           settings.Files.String(),
	})
	return nil
}

func (r *Registry) route(cfg config.WatchConfig, event watcher.Event) {
	switch event.Op {
	case watcher.OpCreated, watcher.OpModified:
		if cfg.AutoUpload {
			r.enqueuer.Enqueue(syncqueue.KindUpload, event.Path)
		}
	case watcher.OpDeleted:
		if cfg.AutoDelete {
			r.enqueuer.Enqueue(syncqueue.KindRemove, event.Path)
		}
	}
}

// Dispose releases the watcher of root. Disposing an absent root is a no-op.
func (r *Registry) Dispose(root string) {
	root = pathutil.Canonical(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeLocked(root)
}

func (r *Registry) disposeLocked(root string) {
	current, ok := r.entries[root]
	if !ok {
		return
	}
	delete(r.entries, root)
	r.metrics.SetWatchersActive(len(r.entries))
	if err := current.handle.Close(); err != nil {
		r.logger.Warn("watch close failed", map[string]string{
			logging.FieldRoot:  root,
			logging.FieldError: err.Error(),
		})
	}
}

// Active reports whether root has an installed watcher.
func (r *Registry) Active(root string) bool {
	root = pathutil.Canonical(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[root]
	return ok
}

// Config returns the settings the watcher of root was installed with.
func (r *Registry) Config(root string) (config.WatchConfig, bool) {
	root = pathutil.Canonical(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[root]
	return current.config, ok
}

// Roots lists every root with an active watcher, sorted.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, len(r.entries))
	for root := range r.entries {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// Close disposes every watcher.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for root := range r.entries {
		r.disposeLocked(root)
	}
}
