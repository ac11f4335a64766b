package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRestartDelayBackoff(t *testing.T) {
	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: restartBaseDelay},
		{attempt: 1, expected: restartBaseDelay * 2},
		{attempt: 2, expected: restartBaseDelay * 4},
	}

	for _, testCase := range cases {
		if got := restartDelay(testCase.attempt); got != testCase.expected {
			t.Fatalf("attempt %d: expected %s, got %s", testCase.attempt, testCase.expected, got)
		}
	}
}

func TestScheduleRestartSetsTimer(t *testing.T) {
	watcher, _ := startWatch(t, t.TempDir(), Options{})

	watcher.scheduleRestart(errors.New("boom"))

	watcher.restartMutex.Lock()
	timer := watcher.restartTimer
	attempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()

	if attempts != 1 {
		t.Fatalf("expected 1 restart attempt, got %d", attempts)
	}
	if timer == nil {
		t.Fatalf("expected restart timer to be set")
	}
	timer.Stop()
	watcher.restartMutex.Lock()
	watcher.restartTimer = nil
	watcher.restartMutex.Unlock()
}

func TestScheduleRestartCallsHandlerWhenExhausted(t *testing.T) {
	received := make(chan error, 1)
	watcher, _ := startWatch(t, t.TempDir(), Options{
		ErrorHandler: func(err error) {
			received <- err
		},
	})

	watcher.restartMutex.Lock()
	watcher.restartAttempts = maxRestartAttempts
	watcher.restartMutex.Unlock()

	watcher.scheduleRestart(errors.New("fatal"))

	select {
	case err := <-received:
		if err.Error() != "fatal" {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected error handler call")
	}
}

func TestRestartKeepsWatchedDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	watcher, events := startWatch(t, root, Options{})

	if err := watcher.restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}

	path := filepath.Join(root, "sub", "after.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForEvent(t, events, path)
}
