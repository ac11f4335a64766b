package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"autosync/internal/event"
	"autosync/internal/metrics"
)

func TestServeWSBusStreamDeliversPayload(t *testing.T) {
	bus := event.NewBus[string](context.Background(), event.BusOptions{Registry: &metrics.Registry{}})
	defer bus.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[string]{
			Bus: bus,
			BuildPayload: func(value string) (any, bool) {
				return map[string]string{"value": value}, true
			},
		})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish("hello")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload map[string]string
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	if payload["value"] != "hello" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestServeWSBusStreamReplaysHistory(t *testing.T) {
	bus := event.NewBus[string](context.Background(), event.BusOptions{
		HistorySize: 4,
		Registry:    &metrics.Registry{},
	})
	defer bus.Close()
	bus.Publish("one")
	bus.Publish("two")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[string]{Bus: bus, Replay: 10})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, expected := range []string{"one", "two"} {
		var value string
		if err := conn.ReadJSON(&value); err != nil {
			t.Fatalf("read websocket: %v", err)
		}
		if value != expected {
			t.Fatalf("expected %q, got %q", expected, value)
		}
	}
}

func TestServeWSBusStreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[string]{
			Bus:               nil,
			UnavailableReason: "stream unavailable",
		})
	}))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 response, got %v", resp)
	}
}

func TestServeWSBusStreamRequiresToken(t *testing.T) {
	bus := event.NewBus[string](context.Background(), event.BusOptions{Registry: &metrics.Registry{}})
	defer bus.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWSBusStream(w, r, wsBusStreamConfig[string]{Bus: bus, AuthToken: "secret"})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v %v", resp, err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=secret", nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}

func TestIsOriginAllowed(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "http://localhost:7733/ws/results", nil)
	request.Host = "localhost:7733"

	if !isOriginAllowed(request, nil) {
		t.Fatalf("expected request without origin to be allowed")
	}
	request.Header.Set("Origin", "http://localhost:3000")
	if !isOriginAllowed(request, nil) {
		t.Fatalf("expected same-host origin to be allowed")
	}
	request.Header.Set("Origin", "http://evil.example")
	if isOriginAllowed(request, nil) {
		t.Fatalf("expected foreign origin to be rejected")
	}
	if !isOriginAllowed(request, []string{"evil.example"}) {
		t.Fatalf("expected listed origin to be allowed")
	}
}
