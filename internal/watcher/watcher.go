package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"autosync/internal/classify"
	"autosync/internal/logging"
	"autosync/internal/metrics"
	"autosync/internal/pathutil"
)

const (
	DefaultDebounce    = 200 * time.Millisecond
	defaultMaxWatches  = 8192
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

var (
	ErrMaxWatchesExceeded = errors.New("max watches exceeded")
	ErrClosed             = errors.New("watcher is closed")
)

// Watch starts watching root and calls callback for every change that
// matches options.Pattern. Callbacks run on timer goroutines and may run
// concurrently for different paths.
func Watch(root string, options Options, callback func(Event)) (*Watcher, error) {
	if root == "" {
		return nil, errors.New("root is required")
	}
	if callback == nil {
		return nil, errors.New("callback is required")
	}
	root = pathutil.Canonical(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	var matcher *classify.Matcher
	if options.Pattern != "" {
		matcher, err = classify.CompileMatcher(options.Pattern)
		if err != nil {
			return nil, fmt.Errorf("file pattern %q: %w", options.Pattern, err)
		}
	}

	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := options.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if options.MaxWatches <= 0 {
		options.MaxWatches = defaultMaxWatches
	}
	names := options.IgnoredNames
	if names == nil {
		names = classify.DefaultIgnoredNames
	}
	ignored := make(map[string]struct{}, len(names))
	for _, name := range names {
		ignored[name] = struct{}{}
	}

	instance := &Watcher{
		root:      root,
		options:   options,
		matcher:   matcher,
		ignored:   ignored,
		callback:  callback,
		logger:    logger.Component("watcher").With(map[string]string{logging.FieldRoot: root}),
		metrics:   registry,
		source:    source,
		dirs:      make(map[string]struct{}),
		debouncer: newDebouncer(debounce),
		events:    make(chan fsnotify.Event, 64),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
	}

	instance.startForwarder(source)
	go instance.run()

	if options.Flat {
		err = instance.addDir(root)
	} else {
		err = instance.addTree(root, false)
	}
	if err != nil {
		_ = instance.Close()
		return nil, err
	}
	instance.logger.Debug("watch started", map[string]string{
		"active_watches": strconv.Itoa(instance.Stats().ActiveWatches),
	})
	return instance, nil
}

// WatchFile watches a single file. The parent directory is watched so that
// editors replacing the file atomically are still seen.
func WatchFile(path string, options Options, callback func(Event)) (*Watcher, error) {
	path = pathutil.Canonical(path)
	options.Flat = true
	options.Pattern = glob.QuoteMeta(filepath.Base(path))
	return Watch(filepath.Dir(path), options, callback)
}

func (watcher *Watcher) Root() string {
	return watcher.root
}

// Close shuts down the watcher. Pending debounced events are dropped.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	if watcher.debouncer != nil {
		watcher.debouncer.stop()
		watcher.debouncer = nil
	}
	source := watcher.source
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

func (watcher *Watcher) run() {
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if path == watcher.root {
		return
	}
	op, ok := translateOp(event.Op)
	if !ok {
		return
	}

	switch op {
	case OpCreated:
		if !watcher.options.Flat {
			if info, err := os.Lstat(path); err == nil && info.IsDir() {
				if err := watcher.addTree(path, true); err != nil {
					watcher.logWarn("watch add failed", map[string]string{
						logging.FieldPath:  path,
						logging.FieldError: err.Error(),
					})
				}
			}
		}
	case OpDeleted:
		watcher.dropTree(path)
	}
	watcher.schedule(path, op)
}

func translateOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreated, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDeleted, true
	case op.Has(fsnotify.Write):
		return OpModified, true
	default:
		return 0, false
	}
}

func (watcher *Watcher) schedule(path string, op Op) {
	rel, err := pathutil.Rel(watcher.root, path)
	if err != nil || !watcher.matcher.Match(rel) {
		return
	}

	entry := Event{
		Root:      watcher.root,
		Path:      path,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	coalesced := watcher.debouncer.schedule(path, entry, watcher.flush)
	watcher.mutex.Unlock()

	if coalesced {
		atomic.AddUint64(&watcher.eventsCoalesced, 1)
	}
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, fields)
}

// Stats reports current watcher counters.
func (watcher *Watcher) Stats() Stats {
	if watcher == nil {
		return Stats{}
	}
	watcher.mutex.Lock()
	active := len(watcher.dirs)
	watcher.mutex.Unlock()
	watcher.restartMutex.Lock()
	restartAttempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Stats{
		Root:            watcher.root,
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		EventsCoalesced: atomic.LoadUint64(&watcher.eventsCoalesced),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
	}
}
