package watcher

import (
	"io/fs"
	"path/filepath"
	"sort"

	"autosync/internal/logging"
	"autosync/internal/pathutil"
)

// addTree watches dir and every directory below it. When emit is set, each
// entry found below dir is reported as created; files written into a new
// directory before its watch is in place would otherwise be missed.
func (watcher *Watcher) addTree(dir string, emit bool) error {
	var created []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if entry.IsDir() {
			if path != dir && watcher.isIgnored(entry.Name()) {
				return filepath.SkipDir
			}
			if err := watcher.addDir(path); err != nil {
				return err
			}
		}
		if emit && path != dir {
			created = append(created, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, path := range created {
		watcher.schedule(path, OpCreated)
	}
	return nil
}

func (watcher *Watcher) isIgnored(name string) bool {
	_, ignored := watcher.ignored[name]
	return ignored
}

func (watcher *Watcher) addDir(path string) error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return ErrClosed
	}
	if _, watched := watcher.dirs[path]; watched {
		watcher.mutex.Unlock()
		return nil
	}
	if len(watcher.dirs) >= watcher.options.MaxWatches {
		watcher.mutex.Unlock()
		return ErrMaxWatchesExceeded
	}
	watcher.dirs[path] = struct{}{}
	source := watcher.source
	watcher.mutex.Unlock()

	if err := source.Add(path); err != nil {
		watcher.mutex.Lock()
		delete(watcher.dirs, path)
		watcher.mutex.Unlock()
		return err
	}
	return nil
}

// dropTree forgets path and everything below it after a delete or rename.
func (watcher *Watcher) dropTree(path string) {
	watcher.mutex.Lock()
	var dropped []string
	for dir := range watcher.dirs {
		if pathutil.Within(path, dir) {
			delete(watcher.dirs, dir)
			dropped = append(dropped, dir)
		}
	}
	source := watcher.source
	watcher.mutex.Unlock()

	for _, dir := range dropped {
		// Deleted directories lose their watch on their own; renamed ones
		// keep it under the stale name.
		_ = source.Remove(dir)
	}
	if len(dropped) > 0 {
		watcher.logger.Debug("watch dropped", map[string]string{logging.FieldPath: path})
	}
}

func (watcher *Watcher) watchedDirs() []string {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	dirs := make([]string, 0, len(watcher.dirs))
	for dir := range watcher.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
