package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"autosync/internal/event"
	"autosync/internal/logging"
	"autosync/internal/metrics"
	"autosync/internal/pathutil"
	"autosync/internal/status"
	"autosync/internal/transport"
)

const (
	SuccessNoticeDuration  = 2 * time.Second
	FailureNoticeDuration  = 4 * time.Second
	DefaultTransferTimeout = 5 * time.Minute
)

type DispatcherOptions struct {
	Transport transport.Transport
	Sink      status.Sink
	Logger    *logging.Logger
	Results   *event.Bus[Result]
	Metrics   *metrics.Registry
	// Limiter throttles how fast items are issued. Nil issues without limit.
	Limiter *rate.Limiter
	// TransferTimeout bounds each transport call. Zero uses the default;
	// negative disables the bound.
	TransferTimeout time.Duration
}

// Dispatcher owns the pending sets and turns a flush into transport calls.
// Items of a batch start in depth-descending order and then run
// concurrently. One item failing never affects another.
type Dispatcher struct {
	ctx       context.Context
	transport transport.Transport
	sink      status.Sink
	logger    *logging.Logger
	results   *event.Bus[Result]
	metrics   *metrics.Registry
	limiter   *rate.Limiter
	timeout   time.Duration
	sets      map[Kind]*PendingSet
	inflight  sync.WaitGroup
}

func NewDispatcher(ctx context.Context, opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Transport == nil {
		return nil, errors.New("dispatcher transport is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sink := opts.Sink
	if sink == nil {
		sink = status.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := opts.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	timeout := opts.TransferTimeout
	if timeout == 0 {
		timeout = DefaultTransferTimeout
	}
	sets := make(map[Kind]*PendingSet, len(Kinds))
	for _, kind := range Kinds {
		sets[kind] = NewPendingSet()
	}
	return &Dispatcher{
		ctx:       ctx,
		transport: opts.Transport,
		sink:      sink,
		logger:    logger.Component("dispatcher"),
		results:   opts.Results,
		metrics:   registry,
		limiter:   opts.Limiter,
		timeout:   timeout,
		sets:      sets,
	}, nil
}

// Set returns the pending set for kind.
func (d *Dispatcher) Set(kind Kind) *PendingSet {
	return d.sets[kind]
}

// Flush drains the pending set for kind and starts issuing the batch. It
// returns the batch size without waiting for any transfer.
func (d *Dispatcher) Flush(kind Kind) int {
	set, ok := d.sets[kind]
	if !ok {
		return 0
	}
	batch := OrderBatch(set.DrainAll())
	if len(batch) == 0 {
		return 0
	}
	d.metrics.IncFlush(string(kind))
	d.inflight.Add(len(batch))
	go d.issue(kind, batch)
	return len(batch)
}

// Wait blocks until every issued transfer has completed.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) issue(kind Kind, batch []string) {
	for _, path := range batch {
		if d.limiter != nil {
			if err := d.limiter.Wait(d.ctx); err != nil {
				d.complete(kind, path, 0, err)
				d.inflight.Done()
				continue
			}
		}
		started := make(chan struct{})
		go d.transfer(kind, path, started)
		// The next item waits until this one reaches its transport call.
		<-started
	}
}

func (d *Dispatcher) transfer(kind Kind, path string, started chan<- struct{}) {
	defer d.inflight.Done()

	d.logger.Info("watcher update", map[string]string{
		logging.FieldPath:   path,
		logging.FieldAction: string(kind),
	})

	ctx := d.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	close(started)
	err := d.call(ctx, kind, path)
	d.complete(kind, path, time.Since(start), err)
}

func (d *Dispatcher) call(ctx context.Context, kind Kind, path string) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s panicked: %v", kind, recovered)
		}
	}()
	switch kind {
	case KindUpload:
		return d.transport.Upload(ctx, path)
	case KindRemove:
		return d.transport.Remove(ctx, path)
	default:
		return fmt.Errorf("unknown sync kind %q", kind)
	}
}

func (d *Dispatcher) complete(kind Kind, path string, duration time.Duration, err error) {
	if err != nil {
		d.logger.ErrorErr(err, string(kind)+" "+path, map[string]string{
			logging.FieldPath:   path,
			logging.FieldAction: string(kind),
		})
		d.sink.ShowTransient("fail", pathutil.Display(path), FailureNoticeDuration)
	} else {
		d.sink.ShowTransient(kind.Verb()+" "+pathutil.Base(path), pathutil.Display(path), SuccessNoticeDuration)
	}
	d.metrics.RecordTransfer(string(kind), duration, err)

	result := Result{
		Path:        path,
		Kind:        kind,
		Duration:    duration,
		CompletedAt: time.Now().UTC(),
		Err:         err,
	}
	if err != nil {
		result.Error = err.Error()
	}
	d.results.Publish(result)
}

// OrderBatch sorts paths deepest first so children are handled before their
// parents. Equal depths fall back to lexical order.
func OrderBatch(paths []string) []string {
	ordered := make([]string, len(paths))
	copy(ordered, paths)
	sort.SliceStable(ordered, func(i, j int) bool {
		left, right := pathutil.Depth(ordered[i]), pathutil.Depth(ordered[j])
		if left != right {
			return left > right
		}
		return ordered[i] < ordered[j]
	})
	return ordered
}
