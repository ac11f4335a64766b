package syncqueue

import "sync"

// PendingSet holds paths awaiting a flush. Adding a path that is already
// pending is a no-op, so a burst of events on one file yields one transfer.
type PendingSet struct {
	mu    sync.Mutex
	items map[string]struct{}
}

func NewPendingSet() *PendingSet {
	return &PendingSet{items: make(map[string]struct{})}
}

// Add reports whether path was newly inserted.
func (s *PendingSet) Add(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[path]; exists {
		return false
	}
	s.items[path] = struct{}{}
	return true
}

// DrainAll returns every pending path and leaves the set empty. Adds that
// race with a drain land in either this batch or the next, never both.
func (s *PendingSet) DrainAll() []string {
	s.mu.Lock()
	drained := s.items
	s.items = make(map[string]struct{}, len(drained))
	s.mu.Unlock()

	paths := make([]string, 0, len(drained))
	for path := range drained {
		paths = append(paths, path)
	}
	return paths
}

func (s *PendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
