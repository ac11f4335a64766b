// Package api serves the read-only status surface of a running autosync
// service: health, Prometheus metrics, status JSON and websocket streams of
// transfer results and notices.
package api

import (
	"net/http"

	"autosync/internal/event"
	"autosync/internal/logging"
	"autosync/internal/metrics"
	"autosync/internal/status"
	"autosync/internal/syncqueue"
)

const (
	resultReplay = 50
	noticeReplay = 20
)

type Options struct {
	Logger         *logging.Logger
	Metrics        *metrics.Registry
	Results        *event.Bus[syncqueue.Result]
	Notices        *event.Bus[status.Notice]
	Status         StatusProvider
	AuthToken      string
	AllowedOrigins []string
}

// NewHandler builds the HTTP handler. /healthz and /metrics never require
// the token; everything else does when one is set.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.Component("api")
	registry := opts.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	rest := &RestHandler{
		Logger:  logger,
		Metrics: registry,
		Results: opts.Results,
		Status:  opts.Status,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", securityHeadersMiddleware(cacheControlNoStore, http.HandlerFunc(rest.handleHealth)))
	mux.Handle("/metrics", securityHeadersMiddleware(cacheControlNoCache, http.HandlerFunc(rest.handleMetrics)))
	mux.Handle("/api/status", restHandler(opts.AuthToken, rest.handleStatus))
	mux.Handle("/api/results", restHandler(opts.AuthToken, rest.handleResults))
	mux.Handle("/api/logs", restHandler(opts.AuthToken, rest.handleLogs))
	mux.HandleFunc("/ws/results", func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[syncqueue.Result]{
			Logger:            logger,
			AuthToken:         opts.AuthToken,
			AllowedOrigins:    opts.AllowedOrigins,
			Bus:               opts.Results,
			UnavailableReason: "result stream unavailable",
			Replay:            resultReplay,
			BuildPayload: func(result syncqueue.Result) (any, bool) {
				return newResultPayload(result), true
			},
		})
	})
	mux.HandleFunc("/ws/notices", func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[status.Notice]{
			Logger:            logger,
			AuthToken:         opts.AuthToken,
			AllowedOrigins:    opts.AllowedOrigins,
			Bus:               opts.Notices,
			UnavailableReason: "notice stream unavailable",
			Replay:            noticeReplay,
			BuildPayload: func(notice status.Notice) (any, bool) {
				return newNoticePayload(notice), true
			},
		})
	})
	return loggingMiddleware(logger, mux)
}
