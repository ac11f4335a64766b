package watcher

import (
	"sync/atomic"
	"time"
)

type debounceEntry struct {
	timer      *time.Timer
	event      Event
	generation uint64
}

// debouncer delays delivery per path until the path has been quiet for
// duration. It is guarded by the owning watcher's mutex.
type debouncer struct {
	duration   time.Duration
	entries    map[string]debounceEntry
	generation uint64
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule records event for path and reports whether it was merged into an
// event that was already waiting. Each call arms a fresh timer tagged with a
// new generation; flush must hand that generation back to pop.
func (debouncer *debouncer) schedule(path string, event Event, flush func(string, uint64)) bool {
	if debouncer == nil {
		return false
	}
	entry, pending := debouncer.entries[path]
	if pending {
		event.Op = mergeOp(entry.event.Op, event.Op)
		// A timer that already fired is left to find a stale generation.
		entry.timer.Stop()
	}
	debouncer.generation++
	generation := debouncer.generation
	entry.event = event
	entry.generation = generation
	entry.timer = time.AfterFunc(debouncer.duration, func() {
		flush(path, generation)
	})
	debouncer.entries[path] = entry
	return pending
}

// mergeOp folds a later change into a pending one. A write right after a
// create is still a create; otherwise the latest change wins.
func mergeOp(previous, next Op) Op {
	if previous == OpCreated && next == OpModified {
		return OpCreated
	}
	return next
}

// pop removes the pending event for path if it still belongs to generation.
func (debouncer *debouncer) pop(path string, generation uint64) (Event, bool) {
	if debouncer == nil {
		return Event{}, false
	}
	entry, ok := debouncer.entries[path]
	if !ok || entry.generation != generation {
		return Event{}, false
	}
	delete(debouncer.entries, path)
	return entry.event, true
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}

func (watcher *Watcher) flush(path string, generation uint64) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	event, ok := watcher.debouncer.pop(path, generation)
	watcher.mutex.Unlock()
	if !ok {
		return
	}

	watcher.callback(event)
	atomic.AddUint64(&watcher.eventsDelivered, 1)
}
