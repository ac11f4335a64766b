// Package status carries transient user-facing notifications such as
// "uploaded main.go". Sinks are fire-and-forget.
package status

import (
	"strconv"
	"sync"
	"time"

	"autosync/internal/event"
	"autosync/internal/logging"
)

// Sink receives transient notifications.
type Sink interface {
	ShowTransient(message, detail string, duration time.Duration)
}

// Notice is one transient notification.
type Notice struct {
	Message  string        `json:"message"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

func (n Notice) Type() string {
	return "notice"
}

// Discard drops every notification.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) ShowTransient(string, string, time.Duration) {}

// LogSink writes notifications to a logger at info level.
type LogSink struct {
	Logger *logging.Logger
}

func (sink LogSink) ShowTransient(message, detail string, duration time.Duration) {
	sink.Logger.Info(message, map[string]string{
		"detail":      detail,
		"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
	})
}

// BusSink publishes notifications on an event bus.
type BusSink struct {
	Bus *event.Bus[Notice]
}

func (sink BusSink) ShowTransient(message, detail string, duration time.Duration) {
	sink.Bus.Publish(Notice{
		Message:  message,
		Detail:   detail,
		Duration: duration,
		At:       time.Now().UTC(),
	})
}

// Multi fans a notification out to every non-nil sink.
type Multi []Sink

func (sinks Multi) ShowTransient(message, detail string, duration time.Duration) {
	for _, sink := range sinks {
		if sink != nil {
			sink.ShowTransient(message, detail, duration)
		}
	}
}

// MemorySink records notifications; used by tests and the status endpoint.
type MemorySink struct {
	mu      sync.Mutex
	notices []Notice
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (sink *MemorySink) ShowTransient(message, detail string, duration time.Duration) {
	if sink == nil {
		return
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.notices = append(sink.notices, Notice{
		Message:  message,
		Detail:   detail,
		Duration: duration,
		At:       time.Now().UTC(),
	})
}

func (sink *MemorySink) Notices() []Notice {
	if sink == nil {
		return nil
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	notices := make([]Notice, len(sink.notices))
	copy(notices, sink.notices)
	return notices
}
