package status

import (
	"context"
	"io"
	"testing"
	"time"

	"autosync/internal/event"
	"autosync/internal/logging"
	"autosync/internal/metrics"
)

func TestMemorySinkRecords(t *testing.T) {
	sink := NewMemorySink()
	sink.ShowTransient("uploaded x.txt", "~/proj/x.txt", 2*time.Second)

	notices := sink.Notices()
	if len(notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(notices))
	}
	if notices[0].Message != "uploaded x.txt" || notices[0].Duration != 2*time.Second {
		t.Fatalf("unexpected notice %+v", notices[0])
	}
}

func TestMultiFansOut(t *testing.T) {
	first := NewMemorySink()
	second := NewMemorySink()
	Multi{first, nil, second, Discard}.ShowTransient("fail", "/proj/x.txt", 4*time.Second)

	if len(first.Notices()) != 1 || len(second.Notices()) != 1 {
		t.Fatal("expected both sinks to receive the notice")
	}
}

func TestLogSinkWritesInfo(t *testing.T) {
	buffer := logging.NewLogBuffer(4)
	sink := LogSink{Logger: logging.NewLoggerWithOutput(buffer, logging.LevelInfo, io.Discard)}

	sink.ShowTransient("removed old.txt", "/proj/old.txt", 2*time.Second)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Context["duration_ms"] != "2000" || entries[0].Context["detail"] != "/proj/old.txt" {
		t.Fatalf("unexpected context %v", entries[0].Context)
	}
}

func TestBusSinkPublishes(t *testing.T) {
	bus := event.NewBus[Notice](context.Background(), event.BusOptions{Registry: &metrics.Registry{}})
	t.Cleanup(bus.Close)
	notices, cancel := bus.Subscribe()
	defer cancel()

	BusSink{Bus: bus}.ShowTransient("uploaded a.txt", "/a.txt", time.Second)

	select {
	case notice := <-notices:
		if notice.Message != "uploaded a.txt" || notice.Type() != "notice" {
			t.Fatalf("unexpected notice %+v", notice)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notice")
	}
}
