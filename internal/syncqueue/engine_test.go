package syncqueue

import (
	"context"
	"errors"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"autosync/internal/classify"
)

func newTestEngine(t *testing.T, classifier classify.Classifier) (*Engine, *dispatcherFixture, *clock.Mock) {
	t.Helper()
	fixture := newDispatcherFixture(t, nil, nil, context.Background())
	mock := clock.NewMock()
	engine, err := NewEngine(fixture.dispatcher, EngineOptions{
		Clock:      mock,
		Classifier: classifier,
		Metrics:    fixture.metrics,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(engine.Stop)
	return engine, fixture, mock
}

func sorted(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}

func TestEngineLeadingFlushThenTrailingDedup(t *testing.T) {
	engine, fixture, mock := newTestEngine(t, nil)

	if !engine.Upload("/proj/x.txt") {
		t.Fatalf("expected upload to be accepted")
	}
	fixture.dispatcher.Wait()
	if got := fixture.transport.Uploads(); !slices.Equal(got, []string{"/proj/x.txt"}) {
		t.Fatalf("expected leading upload, got %v", got)
	}

	mock.Add(50 * time.Millisecond)
	engine.Upload("/proj/x.txt")
	mock.Add(30 * time.Millisecond)
	engine.Upload("/proj/x.txt")
	if got := engine.Pending(KindUpload); got != 1 {
		t.Fatalf("expected 1 pending upload, got %d", got)
	}

	mock.Add(DefaultQuietInterval)
	waitForCondition(t, settle, engine.Idle)
	fixture.dispatcher.Wait()

	if got := fixture.transport.Uploads(); !slices.Equal(got, []string{"/proj/x.txt", "/proj/x.txt"}) {
		t.Fatalf("expected one leading and one trailing upload, got %v", got)
	}
	lane := fixture.metrics.Lane("upload")
	if lane.Queued != 3 || lane.Coalesced != 1 || lane.Flushes != 2 {
		t.Fatalf("unexpected lane counters %+v", lane)
	}
}

func TestEngineLanesAreIndependent(t *testing.T) {
	engine, fixture, mock := newTestEngine(t, nil)

	engine.Upload("/proj/a.txt")
	engine.Remove("/proj/b.txt")
	fixture.dispatcher.Wait()

	if got := fixture.transport.Uploads(); !slices.Equal(got, []string{"/proj/a.txt"}) {
		t.Fatalf("unexpected uploads %v", got)
	}
	if got := fixture.transport.Removes(); !slices.Equal(got, []string{"/proj/b.txt"}) {
		t.Fatalf("unexpected removes %v", got)
	}

	engine.Remove("/proj/c/d.txt")
	engine.Remove("/proj/c")
	mock.Add(DefaultQuietInterval)
	waitForCondition(t, settle, engine.Idle)
	fixture.dispatcher.Wait()

	want := []string{"/proj/b.txt", "/proj/c", "/proj/c/d.txt"}
	if got := sorted(fixture.transport.Removes()); !slices.Equal(got, want) {
		t.Fatalf("removes %v, want %v", got, want)
	}
	if got := fixture.transport.Uploads(); len(got) != 1 {
		t.Fatalf("expected remove lane not to trigger uploads, got %v", got)
	}
}

func TestEngineRejectsClassifiedPaths(t *testing.T) {
	classifier, err := classify.New(classify.Options{})
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	engine, fixture, _ := newTestEngine(t, classifier)

	if engine.Upload("/proj/.git/index") {
		t.Fatalf("expected .git path to be rejected")
	}
	if engine.Upload("/proj/node_modules/x/index.js") {
		t.Fatalf("expected node_modules path to be rejected")
	}
	if engine.Enqueue(Kind("bogus"), "/proj/a") {
		t.Fatalf("expected unknown kind to be rejected")
	}
	fixture.dispatcher.Wait()

	if got := fixture.transport.Uploads(); len(got) != 0 {
		t.Fatalf("expected no uploads, got %v", got)
	}
	if got := fixture.metrics.Rejected(); got != 2 {
		t.Fatalf("expected 2 rejected, got %d", got)
	}
	if !engine.Idle() {
		t.Fatalf("expected engine idle")
	}
}

func TestEngineDrainFlushesPending(t *testing.T) {
	engine, fixture, _ := newTestEngine(t, nil)

	engine.Upload("/proj/a.txt")
	engine.Upload("/proj/b.txt")
	if got := engine.Pending(KindUpload); got != 1 {
		t.Fatalf("expected 1 pending upload, got %d", got)
	}

	engine.Drain()

	want := []string{"/proj/a.txt", "/proj/b.txt"}
	if got := sorted(fixture.transport.Uploads()); !slices.Equal(got, want) {
		t.Fatalf("uploads %v, want %v", got, want)
	}
	if !engine.Idle() || engine.Pending(KindUpload) != 0 {
		t.Fatalf("expected idle engine with nothing pending")
	}
}

func TestNewEngineRejectsShortInterval(t *testing.T) {
	fixture := newDispatcherFixture(t, nil, nil, context.Background())
	_, err := NewEngine(fixture.dispatcher, EngineOptions{Interval: 10 * time.Millisecond})
	if !errors.Is(err, ErrIntervalTooShort) {
		t.Fatalf("expected ErrIntervalTooShort, got %v", err)
	}
}

func TestEngineReportsInterval(t *testing.T) {
	fixture := newDispatcherFixture(t, nil, nil, context.Background())
	engine, err := NewEngine(fixture.dispatcher, EngineOptions{Interval: time.Second, Clock: clock.NewMock()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.Interval() != time.Second {
		t.Fatalf("expected 1s interval, got %s", engine.Interval())
	}
}
