// Package metrics keeps process-wide counters for the sync engine and
// renders them in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	eventsRejected atomic.Int64
	watchersActive atomic.Int64
	watchErrors    atomic.Int64
	lanes          sync.Map
	buses          sync.Map
}

type laneStats struct {
	queued        atomic.Int64
	coalesced     atomic.Int64
	flushes       atomic.Int64
	succeeded     atomic.Int64
	failed        atomic.Int64
	durationNanos atomic.Int64
}

type busStats struct {
	published  atomic.Int64
	dropped    atomic.Int64
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

// IncQueued counts a path accepted into a pending set. coalesced is true
// when the path was already pending.
func (r *Registry) IncQueued(kind string, coalesced bool) {
	if r == nil {
		return
	}
	stats := r.laneStats(kind)
	stats.queued.Add(1)
	if coalesced {
		stats.coalesced.Add(1)
	}
}

func (r *Registry) IncRejected() {
	if r == nil {
		return
	}
	r.eventsRejected.Add(1)
}

func (r *Registry) IncFlush(kind string) {
	if r == nil {
		return
	}
	r.laneStats(kind).flushes.Add(1)
}

func (r *Registry) RecordTransfer(kind string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	stats := r.laneStats(kind)
	stats.durationNanos.Add(duration.Nanoseconds())
	if err != nil {
		stats.failed.Add(1)
		return
	}
	stats.succeeded.Add(1)
}

func (r *Registry) SetWatchersActive(count int) {
	if r == nil {
		return
	}
	r.watchersActive.Store(int64(count))
}

func (r *Registry) IncWatchError() {
	if r == nil {
		return
	}
	r.watchErrors.Add(1)
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	r.busStats(bus).published.Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	r.busStats(bus).dropped.Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	stats := r.busStats(bus)
	stats.filtered.Store(int64(filtered))
	stats.unfiltered.Store(int64(unfiltered))
}

// Snapshot is a point-in-time copy of one lane's counters.
type Snapshot struct {
	Queued    int64 `json:"queued"`
	Coalesced int64 `json:"coalesced"`
	Flushes   int64 `json:"flushes"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

func (r *Registry) Lane(kind string) Snapshot {
	if r == nil {
		return Snapshot{}
	}
	stats := r.laneStats(kind)
	return Snapshot{
		Queued:    stats.queued.Load(),
		Coalesced: stats.coalesced.Load(),
		Flushes:   stats.flushes.Load(),
		Succeeded: stats.succeeded.Load(),
		Failed:    stats.failed.Load(),
	}
}

func (r *Registry) Rejected() int64 {
	if r == nil {
		return 0
	}
	return r.eventsRejected.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "autosync_events_rejected_total", "Changed paths rejected by the classifier", r.eventsRejected.Load())
	writeGauge(writer, "autosync_watchers_active", "Watched roots with an active watcher", r.watchersActive.Load())
	writeCounter(writer, "autosync_watch_errors_total", "Errors reported by filesystem watchers", r.watchErrors.Load())

	kinds := sortedKeys(&r.lanes)
	writeHelp(writer, "autosync_queued_total", "Paths added to a pending set")
	fmt.Fprintln(writer, "# TYPE autosync_queued_total counter")
	writeHelp(writer, "autosync_coalesced_total", "Paths added while already pending")
	fmt.Fprintln(writer, "# TYPE autosync_coalesced_total counter")
	writeHelp(writer, "autosync_flushes_total", "Batches flushed by the quiet-period scheduler")
	fmt.Fprintln(writer, "# TYPE autosync_flushes_total counter")
	writeHelp(writer, "autosync_transfers_total", "Completed transfers by outcome")
	fmt.Fprintln(writer, "# TYPE autosync_transfers_total counter")
	writeHelp(writer, "autosync_transfer_duration_seconds", "Transfer duration in seconds")
	fmt.Fprintln(writer, "# TYPE autosync_transfer_duration_seconds summary")
	for _, kind := range kinds {
		stats := r.laneStats(kind)
		label := formatLabel(kind)
		fmt.Fprintf(writer, "autosync_queued_total{kind=%s} %d\n", label, stats.queued.Load())
		fmt.Fprintf(writer, "autosync_coalesced_total{kind=%s} %d\n", label, stats.coalesced.Load())
		fmt.Fprintf(writer, "autosync_flushes_total{kind=%s} %d\n", label, stats.flushes.Load())
		fmt.Fprintf(writer, "autosync_transfers_total{kind=%s,outcome=\"success\"} %d\n", label, stats.succeeded.Load())
		fmt.Fprintf(writer, "autosync_transfers_total{kind=%s,outcome=\"failure\"} %d\n", label, stats.failed.Load())
		count := stats.succeeded.Load() + stats.failed.Load()
		seconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "autosync_transfer_duration_seconds_sum{kind=%s} %.6f\n", label, seconds)
		fmt.Fprintf(writer, "autosync_transfer_duration_seconds_count{kind=%s} %d\n", label, count)
	}

	buses := sortedKeys(&r.buses)
	writeHelp(writer, "autosync_bus_events_total", "Events published and dropped per bus")
	fmt.Fprintln(writer, "# TYPE autosync_bus_events_total counter")
	for _, bus := range buses {
		stats := r.busStats(bus)
		label := formatLabel(bus)
		fmt.Fprintf(writer, "autosync_bus_events_total{bus=%s,state=\"published\"} %d\n", label, stats.published.Load())
		fmt.Fprintf(writer, "autosync_bus_events_total{bus=%s,state=\"dropped\"} %d\n", label, stats.dropped.Load())
	}
	return nil
}

func (r *Registry) laneStats(kind string) *laneStats {
	if strings.TrimSpace(kind) == "" {
		kind = "unknown"
	}
	value, _ := r.lanes.LoadOrStore(kind, &laneStats{})
	return value.(*laneStats)
}

func (r *Registry) busStats(name string) *busStats {
	value, _ := r.buses.LoadOrStore(name, &busStats{})
	return value.(*busStats)
}

func sortedKeys(values *sync.Map) []string {
	var names []string
	values.Range(func(key, value any) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
