package syncqueue

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

const settle = time.Second

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// holdsFor reports whether condition stays true for the whole of wait.
func holdsFor(wait time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !condition() {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

func newCountingScheduler(t *testing.T) (*Scheduler, *clock.Mock, *atomic.Int32) {
	t.Helper()
	mock := clock.NewMock()
	var flushes atomic.Int32
	scheduler, err := NewScheduler(DefaultQuietInterval, mock, func() {
		flushes.Add(1)
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(scheduler.Cancel)
	return scheduler, mock, &flushes
}

func TestNewSchedulerRejectsShortInterval(t *testing.T) {
	if _, err := NewScheduler(100*time.Millisecond, clock.NewMock(), func() {}); !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("expected ErrIntervalTooShort, got %v", err)
	}

	scheduler, err := NewScheduler(0, clock.NewMock(), func() {})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if scheduler.Interval() != DefaultQuietInterval {
		t.Fatalf("expected default interval, got %s", scheduler.Interval())
	}

	if _, err := NewScheduler(time.Second, clock.NewMock(), nil); err == nil {
		t.Fatalf("expected error for nil flush")
	}
}

func TestSchedulerSingleNotifyFlushesOnce(t *testing.T) {
	scheduler, mock, flushes := newCountingScheduler(t)

	scheduler.Notify()
	if got := flushes.Load(); got != 1 {
		t.Fatalf("expected leading flush to run immediately, got %d flushes", got)
	}
	if scheduler.Idle() {
		t.Fatalf("expected open window after notify")
	}

	mock.Add(DefaultQuietInterval)
	waitForCondition(t, settle, scheduler.Idle)
	if got := flushes.Load(); got != 1 {
		t.Fatalf("expected no trailing flush, got %d flushes", got)
	}
}

func TestSchedulerBurstLeadingAndTrailing(t *testing.T) {
	scheduler, mock, flushes := newCountingScheduler(t)

	for i := 0; i < 5; i++ {
		scheduler.Notify()
		mock.Add(100 * time.Millisecond)
	}
	if got := flushes.Load(); got != 1 {
		t.Fatalf("expected 1 flush during burst, got %d", got)
	}

	mock.Add(DefaultQuietInterval)
	waitForCondition(t, settle, func() bool { return flushes.Load() == 2 })
	waitForCondition(t, settle, scheduler.Idle)

	mock.Add(10 * DefaultQuietInterval)
	if !holdsFor(50*time.Millisecond, func() bool { return flushes.Load() == 2 }) {
		t.Fatalf("expected no flush after the window closed, got %d", flushes.Load())
	}
}

func TestSchedulerWindowExtendsFromLastNotify(t *testing.T) {
	scheduler, mock, flushes := newCountingScheduler(t)

	scheduler.Notify()
	mock.Add(500 * time.Millisecond)
	scheduler.Notify()

	// Past the first deadline but inside the extended one.
	mock.Add(100 * time.Millisecond)
	if !holdsFor(30*time.Millisecond, func() bool { return flushes.Load() == 1 }) {
		t.Fatalf("expected trailing flush to wait for the extended window")
	}
	if scheduler.Idle() {
		t.Fatalf("expected window still open")
	}

	mock.Add(450 * time.Millisecond)
	waitForCondition(t, settle, func() bool { return flushes.Load() == 2 })
}

func TestSchedulerSeparatedNotifiesFlushEach(t *testing.T) {
	scheduler, mock, flushes := newCountingScheduler(t)

	for i := 0; i < 3; i++ {
		scheduler.Notify()
		mock.Add(DefaultQuietInterval + time.Millisecond)
		waitForCondition(t, settle, scheduler.Idle)
	}
	if got := flushes.Load(); got != 3 {
		t.Fatalf("expected 3 flushes, got %d", got)
	}
}

func TestSchedulerCancelDropsTrailing(t *testing.T) {
	scheduler, mock, flushes := newCountingScheduler(t)

	scheduler.Notify()
	scheduler.Notify()
	scheduler.Cancel()
	if !scheduler.Idle() {
		t.Fatalf("expected idle after cancel")
	}

	mock.Add(2 * DefaultQuietInterval)
	if !holdsFor(50*time.Millisecond, func() bool { return flushes.Load() == 1 }) {
		t.Fatalf("expected cancel to drop the trailing flush")
	}

	scheduler.Notify()
	if got := flushes.Load(); got != 2 {
		t.Fatalf("expected a fresh leading flush after cancel, got %d", got)
	}
}

func TestSchedulerRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("uses wall-clock time")
	}
	var flushes atomic.Int32
	scheduler, err := NewScheduler(DefaultQuietInterval, nil, func() {
		flushes.Add(1)
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer scheduler.Cancel()

	scheduler.Notify()
	scheduler.Notify()
	waitForCondition(t, 3*time.Second, func() bool { return flushes.Load() == 2 })
	waitForCondition(t, time.Second, scheduler.Idle)
}
