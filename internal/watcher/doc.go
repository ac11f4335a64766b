// Package watcher turns fsnotify events under one root into created,
// modified and deleted events for the sync engine.
//
// A Watcher covers a directory tree: new subdirectories are watched as they
// appear and their contents reported as created. Events on the same path
// within the debounce window are merged, so a create followed by a write
// arrives as a single created event. Delivery is best effort; callers
// should treat an event as a hint that the path needs syncing.
package watcher
