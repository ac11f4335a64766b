package syncqueue

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"autosync/internal/classify"
	"autosync/internal/metrics"
	"autosync/internal/pathutil"
)

type EngineOptions struct {
	Interval   time.Duration
	Clock      clock.Clock
	Classifier classify.Classifier
	Metrics    *metrics.Registry
}

// Engine pairs each kind's pending set with its own scheduler. The upload
// and remove lanes never wait on each other.
type Engine struct {
	dispatcher *Dispatcher
	classifier classify.Classifier
	metrics    *metrics.Registry
	schedulers map[Kind]*Scheduler
}

func NewEngine(dispatcher *Dispatcher, opts EngineOptions) (*Engine, error) {
	if dispatcher == nil {
		return nil, errors.New("engine dispatcher is required")
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.AcceptAll
	}
	registry := opts.Metrics
	if registry == nil {
		registry = dispatcher.metrics
	}
	engine := &Engine{
		dispatcher: dispatcher,
		classifier: classifier,
		metrics:    registry,
		schedulers: make(map[Kind]*Scheduler, len(Kinds)),
	}
	for _, kind := range Kinds {
		kind := kind
		scheduler, err := NewScheduler(opts.Interval, opts.Clock, func() {
			dispatcher.Flush(kind)
		})
		if err != nil {
			return nil, err
		}
		engine.schedulers[kind] = scheduler
	}
	return engine, nil
}

// Enqueue classifies path and, if accepted, adds it to the kind's pending
// set and notifies that lane's scheduler. A path that is already pending
// still notifies, extending the quiet window.
func (e *Engine) Enqueue(kind Kind, path string) bool {
	scheduler, ok := e.schedulers[kind]
	if !ok {
		return false
	}
	path = pathutil.Canonical(path)
	if !e.classifier.Valid(path) {
		e.metrics.IncRejected()
		return false
	}
	added := e.dispatcher.Set(kind).Add(path)
	e.metrics.IncQueued(string(kind), !added)
	scheduler.Notify()
	return true
}

func (e *Engine) Upload(path string) bool {
	return e.Enqueue(KindUpload, path)
}

func (e *Engine) Remove(path string) bool {
	return e.Enqueue(KindRemove, path)
}

// Interval is the quiet period shared by both lanes.
func (e *Engine) Interval() time.Duration {
	return e.schedulers[KindUpload].Interval()
}

// Pending reports how many paths await the next flush of kind.
func (e *Engine) Pending(kind Kind) int {
	set := e.dispatcher.Set(kind)
	if set == nil {
		return 0
	}
	return set.Len()
}

// Idle reports whether both lanes have no open quiet window.
func (e *Engine) Idle() bool {
	for _, scheduler := range e.schedulers {
		if !scheduler.Idle() {
			return false
		}
	}
	return true
}

// Stop cancels both schedulers; queued paths stay pending.
func (e *Engine) Stop() {
	for _, scheduler := range e.schedulers {
		scheduler.Cancel()
	}
}

// Drain stops the schedulers, flushes whatever is still pending and waits
// for every transfer to finish.
func (e *Engine) Drain() {
	e.Stop()
	for _, kind := range Kinds {
		e.dispatcher.Flush(kind)
	}
	e.dispatcher.Wait()
}

func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}
