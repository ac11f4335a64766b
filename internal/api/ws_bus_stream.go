package api

import (
	"net/http"
	"strings"

	"autosync/internal/event"
	"autosync/internal/logging"
)

type wsBusStreamConfig[T any] struct {
	Logger            *logging.Logger
	AuthToken         string
	AllowedOrigins    []string
	Bus               *event.Bus[T]
	UnavailableReason string
	// Replay sends up to this many retained events before live ones.
	Replay       int
	BuildPayload func(T) (any, bool)
}

// serveWSBusStream subscribes to a bus and streams payloads to a websocket connection.
func serveWSBusStream[T any](w http.ResponseWriter, r *http.Request, config wsBusStreamConfig[T]) {
	if !requireWSToken(w, r, config.AuthToken, config.Logger) {
		return
	}

	bus := config.Bus
	if bus == nil {
		writeWSError(w, r, nil, config.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: unavailableReason(config.UnavailableReason),
		})
		return
	}

	var backlog []T
	if config.Replay > 0 {
		backlog = bus.History(config.Replay)
	}
	output, cancel := bus.Subscribe()
	if output == nil {
		writeWSError(w, r, nil, config.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: unavailableReason(config.UnavailableReason),
		})
		return
	}
	defer cancel()

	conn, err := upgradeWebSocket(w, r, config.AllowedOrigins)
	if err != nil {
		logWSError(config.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	serveWSStream(r, wsStreamConfig[T]{
		Conn:         conn,
		Logger:       config.Logger,
		Output:       output,
		Backlog:      backlog,
		BuildPayload: config.BuildPayload,
	})
}

func unavailableReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "event stream unavailable"
	}
	return reason
}
