package watcher

import (
	"testing"
	"time"
)

func TestDebouncerCoalescesEvents(t *testing.T) {
	debouncer := newDebouncer(25 * time.Millisecond)
	defer debouncer.stop()

	received := make(chan uint64, 2)
	flush := func(path string, generation uint64) {
		received <- generation
	}

	if merged := debouncer.schedule("path", Event{Path: "path", Op: OpCreated}, flush); merged {
		t.Fatalf("expected first event not to be merged")
	}
	if merged := debouncer.schedule("path", Event{Path: "path", Op: OpModified}, flush); !merged {
		t.Fatalf("expected second event to be merged")
	}

	count := 0
	var fired uint64
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case fired = <-received:
			count++
		case <-deadline:
			if count != 1 {
				t.Fatalf("expected 1 flush, got %d", count)
			}
			event, ok := debouncer.pop("path", fired)
			if !ok || event.Op != OpCreated {
				t.Fatalf("expected pending created event, got %+v (ok=%v)", event, ok)
			}
			return
		}
	}
}

func TestDebouncerIgnoresStaleFire(t *testing.T) {
	debouncer := newDebouncer(time.Hour)
	defer debouncer.stop()
	flush := func(string, uint64) {}

	debouncer.schedule("path", Event{Path: "path", Op: OpCreated}, flush)
	stale := debouncer.entries["path"].generation
	debouncer.schedule("path", Event{Path: "path", Op: OpModified}, flush)
	current := debouncer.entries["path"].generation
	if stale == current {
		t.Fatalf("expected a new generation on reschedule")
	}

	// A fire from the first timer must not deliver the rescheduled event.
	if _, ok := debouncer.pop("path", stale); ok {
		t.Fatalf("expected stale generation to be ignored")
	}
	event, ok := debouncer.pop("path", current)
	if !ok || event.Op != OpCreated {
		t.Fatalf("expected merged created event, got %+v (ok=%v)", event, ok)
	}
	if _, ok := debouncer.pop("path", current); ok {
		t.Fatalf("expected entry to be gone after pop")
	}
}

func TestMergeOp(t *testing.T) {
	cases := []struct {
		previous Op
		next     Op
		expected Op
	}{
		{OpCreated, OpModified, OpCreated},
		{OpCreated, OpDeleted, OpDeleted},
		{OpDeleted, OpCreated, OpCreated},
		{OpModified, OpModified, OpModified},
		{OpModified, OpDeleted, OpDeleted},
	}
	for _, testCase := range cases {
		if got := mergeOp(testCase.previous, testCase.next); got != testCase.expected {
			t.Fatalf("merge %s+%s: expected %s, got %s", testCase.previous, testCase.next, testCase.expected, got)
		}
	}
}
