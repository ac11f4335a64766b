package syncqueue

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultQuietInterval = 550 * time.Millisecond
	MinQuietInterval     = 550 * time.Millisecond
)

var ErrIntervalTooShort = errors.New("quiet interval is below the minimum")

// Scheduler is a leading and trailing debouncer. The first Notify in an idle
// period flushes immediately and opens a quiet window; every later Notify
// inside the window pushes its end out by the interval. When the window
// closes, one trailing flush runs if anything was notified after the leading
// one.
type Scheduler struct {
	mu              sync.Mutex
	clock           clock.Clock
	interval        time.Duration
	flush           func()
	timer           *clock.Timer
	generation      uint64
	lastNotify      time.Time
	windowOpen      bool
	trailingPending bool
}

func NewScheduler(interval time.Duration, clk clock.Clock, flush func()) (*Scheduler, error) {
	if interval == 0 {
		interval = DefaultQuietInterval
	}
	if interval < MinQuietInterval {
		return nil, ErrIntervalTooShort
	}
	if flush == nil {
		return nil, errors.New("flush function is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:    clk,
		interval: interval,
		flush:    flush,
	}, nil
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Notify records a change. The leading flush runs on the caller's goroutine;
// the trailing flush runs on the timer's.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	s.lastNotify = s.clock.Now()
	if s.windowOpen {
		s.trailingPending = true
		s.timer.Reset(s.interval)
		s.mu.Unlock()
		return
	}
	s.windowOpen = true
	s.generation++
	generation := s.generation
	s.timer = s.clock.AfterFunc(s.interval, func() {
		s.expire(generation)
	})
	s.mu.Unlock()

	s.flush()
}

func (s *Scheduler) expire(generation uint64) {
	s.mu.Lock()
	if !s.windowOpen || generation != s.generation {
		s.mu.Unlock()
		return
	}
	// A Notify may have landed after the timer fired but before this
	// callback took the lock.
	if remaining := s.interval - s.clock.Since(s.lastNotify); remaining > 0 {
		s.timer.Reset(remaining)
		s.mu.Unlock()
		return
	}
	fire := s.trailingPending
	s.windowOpen = false
	s.trailingPending = false
	s.timer = nil
	s.mu.Unlock()

	if fire {
		s.flush()
	}
}

// Cancel closes any open window without a trailing flush.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.windowOpen = false
	s.trailingPending = false
	s.generation++
}

// Idle reports whether no quiet window is open.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.windowOpen
}
