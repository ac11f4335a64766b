package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"autosync/internal/api"
	"autosync/internal/classify"
	"autosync/internal/config"
	"autosync/internal/event"
	"autosync/internal/logging"
	"autosync/internal/metrics"
	"autosync/internal/registry"
	"autosync/internal/status"
	"autosync/internal/syncqueue"
	"autosync/internal/transport"
	"autosync/internal/watcher"
)

const (
	resultHistorySize = 256
	noticeHistorySize = 64
	shutdownTimeout   = 5 * time.Second
)

type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
	// Clock drives the quiet-period schedulers. Nil uses the real clock.
	Clock clock.Clock
	// Transports builds the remote of each root. Nil uses BuildTransport.
	Transports TransportFactory
	// Watchers overrides the fsnotify watcher factory.
	Watchers registry.WatcherFactory
	// Sink receives notices in addition to the log and the notice bus.
	Sink status.Sink
	// AuthToken protects the status API when set.
	AuthToken string
}

// Service is one running autosync instance.
type Service struct {
	ctx        context.Context
	cancel     context.CancelFunc
	work       context.Context
	stopWork   context.CancelFunc
	logger     *logging.Logger
	metrics    *metrics.Registry
	transports TransportFactory
	authToken  string
	startedAt  time.Time

	results    *event.Bus[syncqueue.Result]
	notices    *event.Bus[status.Notice]
	router     *transport.Router
	engine     *syncqueue.Engine
	registry   *registry.Registry
	classifier atomic.Pointer[classify.Classifier]

	mu       sync.Mutex
	settings config.Settings
	reload   *watcher.Watcher
	server   *http.Server
	closed   bool
}

// New builds the service and applies every root of settings. Roots that
// fail to build are reported in the returned error while the rest keep
// running; a nil Service is only returned when the engine itself cannot be
// built.
func New(ctx context.Context, settings config.Settings, opts Options) (*Service, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, serveCancel := context.WithCancel(ctx)
	// Transfers and buses outlive the caller's context so Close can drain
	// what is still pending after a shutdown signal.
	work, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	cancel := func() {
		stopWork()
		serveCancel()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registryMetrics := opts.Metrics
	if registryMetrics == nil {
		registryMetrics = metrics.Default
	}
	transports := opts.Transports
	if transports == nil {
		transports = BuildTransport
	}

	service := &Service{
		ctx:        ctx,
		cancel:     serveCancel,
		work:       work,
		stopWork:   stopWork,
		logger:     logger.Component("app"),
		metrics:    registryMetrics,
		transports: transports,
		authToken:  opts.AuthToken,
		startedAt:  time.Now().UTC(),
		router:     transport.NewRouter(),
	}
	service.results = event.NewBus[syncqueue.Result](work, event.BusOptions{
		Name:        "sync_results",
		HistorySize: resultHistorySize,
		Registry:    registryMetrics,
	})
	service.notices = event.NewBus[status.Notice](work, event.BusOptions{
		Name:        "notices",
		HistorySize: noticeHistorySize,
		Registry:    registryMetrics,
	})

	classifier, err := BuildClassifier(settings)
	if err != nil {
		cancel()
		return nil, err
	}
	service.classifier.Store(&classifier)

	sinks := status.Multi{status.LogSink{Logger: logger.Component("status")}, status.BusSink{Bus: service.notices}}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}

	var limiter *rate.Limiter
	if settings.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.RateLimit), settings.RateBurst)
	}
	dispatcher, err := syncqueue.NewDispatcher(work, syncqueue.DispatcherOptions{
		Transport:       service.router,
		Sink:            sinks,
		Logger:          logger,
		Results:         service.results,
		Metrics:         registryMetrics,
		Limiter:         limiter,
		TransferTimeout: settings.TransferTimeout,
	})
	if err != nil {
		cancel()
		return nil, BuildError{Stage: StageDispatcher, Err: err}
	}
	service.engine, err = syncqueue.NewEngine(dispatcher, syncqueue.EngineOptions{
		Interval: settings.QuietInterval,
		Clock:    opts.Clock,
		Metrics:  registryMetrics,
		Classifier: classify.Func(func(path string) bool {
			return (*service.classifier.Load()).Valid(path)
		}),
	})
	if err != nil {
		cancel()
		return nil, BuildError{Stage: StageEngine, Err: err}
	}

	watchers := opts.Watchers
	if watchers == nil {
		watchers = registry.FSNotifyFactory(watcher.Options{
			Logger:       logger,
			Metrics:      registryMetrics,
			Debounce:     settings.WatchDebounce,
			IgnoredNames: settings.Ignore.Names,
			MaxWatches:   settings.MaxWatches,
			ErrorHandler: func(err error) {
				logger.ErrorErr(err, "watcher stopped", nil)
			},
		})
	}
	service.registry, err = registry.New(service.engine, registry.Options{
		Factory: watchers,
		Logger:  logger,
		Metrics: registryMetrics,
	})
	if err != nil {
		cancel()
		return nil, BuildError{Stage: StageRegistry, Err: err}
	}

	return service, service.Apply(settings)
}

// Apply brings the running roots in line with settings. Every listed root
// is re-created, which replaces its watcher; roots no longer listed are
// disposed. Failures of one root do not stop the others.
func (s *Service) Apply(settings config.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("service is closed")
	}

	classifier, err := BuildClassifier(settings)
	if err != nil {
		return err
	}
	if current := s.engine.Interval(); settings.QuietInterval != 0 && settings.QuietInterval != current {
		s.logger.Warn("quiet interval change needs a restart", map[string]string{
			"current":   current.String(),
			"requested": settings.QuietInterval.String(),
		})
	}

	wanted := make(map[string]struct{}, len(settings.Roots))
	for _, root := range settings.Roots {
		wanted[root.Path] = struct{}{}
	}
	for _, previous := range s.settings.Roots {
		if _, keep := wanted[previous.Path]; keep {
			continue
		}
		s.registry.Dispose(previous.Path)
		s.router.Delete(previous.Path)
		s.logger.Info("root removed", map[string]string{logging.FieldRoot: previous.Path})
	}
	s.classifier.Store(&classifier)

	var errs []error
	for _, root := range settings.Roots {
		remote, err := s.transports(s.work, root)
		if err != nil {
			s.registry.Dispose(root.Path)
			s.router.Delete(root.Path)
			errs = append(errs, BuildError{Stage: StageTransport, Root: root.Path, Err: err})
			continue
		}
		s.router.Set(root.Path, remote)
		if err := s.registry.Create(root.Path, root.Watcher); err != nil {
			errs = append(errs, BuildError{Stage: StageWatch, Root: root.Path, Err: err})
			continue
		}
		s.logger.Info("root applied", map[string]string{
			logging.FieldRoot: root.Path,
			"remote":          string(root.Remote.Kind),
			"watching":        boolString(s.registry.Active(root.Path)),
		})
	}
	s.settings = settings
	return errors.Join(errs...)
}

// Status implements api.StatusProvider.
func (s *Service) Status() api.Status {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()

	snapshot := api.Status{
		ConfigPath: settings.Path,
		StartedAt:  s.startedAt,
		Idle:       s.engine.Idle(),
		Pending:    make(map[string]int, len(syncqueue.Kinds)),
		Roots:      make([]api.RootStatus, 0, len(settings.Roots)),
	}
	for _, kind := range syncqueue.Kinds {
		snapshot.Pending[string(kind)] = s.engine.Pending(kind)
	}
	for _, root := range settings.Roots {
		entry := api.RootStatus{
			Path:     root.Path,
			Watching: s.registry.Active(root.Path),
			Files:    "false",
			Remote:   string(root.Remote.Kind),
		}
		// A root whose watcher section was dropped keeps its running watcher.
		watch := root.Watcher
		if installed, ok := s.registry.Config(root.Path); ok {
			watch = &installed
		}
		if watch != nil {
			entry.Files = watch.Files.String()
			entry.AutoUpload = watch.AutoUpload
			entry.AutoDelete = watch.AutoDelete
		}
		snapshot.Roots = append(snapshot.Roots, entry)
	}
	sort.Slice(snapshot.Roots, func(i, j int) bool {
		return snapshot.Roots[i].Path < snapshot.Roots[j].Path
	})
	return snapshot
}

func (s *Service) Handler() http.Handler {
	return api.NewHandler(api.Options{
		Logger:    s.logger,
		Metrics:   s.metrics,
		Results:   s.results,
		Notices:   s.notices,
		Status:    s,
		AuthToken: s.authToken,
	})
}

func (s *Service) Engine() *syncqueue.Engine {
	return s.engine
}

func (s *Service) Registry() *registry.Registry {
	return s.registry
}

func (s *Service) Results() *event.Bus[syncqueue.Result] {
	return s.results
}

func (s *Service) Notices() *event.Bus[status.Notice] {
	return s.notices
}

// Serve listens on addr until the service context ends. An empty addr
// serves nothing and returns when the context ends.
func (s *Service) Serve(addr string) error {
	if addr == "" {
		<-s.ctx.Done()
		return nil
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return BuildError{Stage: StageServer, Err: err}
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	s.logger.Info("status api listening", map[string]string{"addr": listener.Addr().String()})
	go func() {
		<-s.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops watching, flushes everything still pending, waits for the
// transfers and releases the buses.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	reload := s.reload
	s.reload = nil
	s.mu.Unlock()

	if reload != nil {
		_ = reload.Close()
	}
	s.registry.Close()
	s.engine.Drain()
	s.stopWork()
	s.cancel()
	s.results.Close()
	s.notices.Close()
	s.logger.Info("service stopped", nil)
	return nil
}

func boolString(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
