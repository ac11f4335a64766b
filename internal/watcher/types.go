package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"autosync/internal/classify"
	"autosync/internal/logging"
	"autosync/internal/metrics"
)

// Op is the kind of change reported for a path.
type Op uint8

const (
	OpCreated Op = iota + 1
	OpModified
	OpDeleted
)

func (op Op) String() string {
	switch op {
	case OpCreated:
		return "created"
	case OpModified:
		return "modified"
	case OpDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event represents a single filesystem change.
type Event struct {
	Root      string
	Path      string
	Op        Op
	Timestamp time.Time
}

// Handle releases watcher resources.
type Handle interface {
	Close() error
}

// Options controls watcher behavior.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
	// Pattern selects which root-relative paths are reported. Empty reports
	// everything.
	Pattern  string
	Debounce time.Duration
	// Flat watches only the root directory itself.
	Flat bool
	// IgnoredNames are directory names that are never descended into. Nil
	// uses classify.DefaultIgnoredNames.
	IgnoredNames []string
	MaxWatches   int
	// ErrorHandler is called once restarts are exhausted.
	ErrorHandler func(error)
}

// Stats reports watcher counters.
type Stats struct {
	Root            string
	ActiveWatches   int
	EventsDelivered uint64
	EventsCoalesced uint64
	Errors          uint64
	RestartAttempts int
}

// Watcher is an fsnotify-backed watch over one root.
type Watcher struct {
	root     string
	options  Options
	matcher  *classify.Matcher
	ignored  map[string]struct{}
	callback func(Event)
	logger   *logging.Logger
	metrics  *metrics.Registry

	mutex     sync.Mutex
	source    *fsnotify.Watcher
	dirs      map[string]struct{}
	debouncer *debouncer
	closed    bool

	events chan fsnotify.Event
	errors chan error
	done   chan struct{}

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int

	eventsDelivered uint64
	eventsCoalesced uint64
	errorCount      uint64
}
