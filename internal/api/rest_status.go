package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"autosync/internal/event"
	"autosync/internal/logging"
	"autosync/internal/metrics"
	"autosync/internal/status"
	"autosync/internal/syncqueue"
	"autosync/internal/version"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// StatusProvider reports the live state of the sync service.
type StatusProvider interface {
	Status() Status
}

type Status struct {
	ConfigPath string         `json:"config_path,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Idle       bool           `json:"idle"`
	Pending    map[string]int `json:"pending"`
	Roots      []RootStatus   `json:"roots"`
}

type RootStatus struct {
	Path       string `json:"path"`
	Watching   bool   `json:"watching"`
	Files      string `json:"files"`
	AutoUpload bool   `json:"auto_upload"`
	AutoDelete bool   `json:"auto_delete"`
	Remote     string `json:"remote"`
}

type statusResponse struct {
	Status
	Version    version.Info                `json:"version"`
	ServerTime time.Time                   `json:"server_time"`
	Lanes      map[string]metrics.Snapshot `json:"lanes"`
	Rejected   int64                       `json:"rejected"`
}

type resultPayload struct {
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	Kind        string    `json:"kind"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

func newResultPayload(result syncqueue.Result) resultPayload {
	return resultPayload{
		Type:        "result",
		Path:        result.Path,
		Kind:        string(result.Kind),
		OK:          result.OK(),
		Error:       result.Error,
		DurationMS:  result.Duration.Milliseconds(),
		CompletedAt: result.CompletedAt,
	}
}

type noticePayload struct {
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

func newNoticePayload(notice status.Notice) noticePayload {
	return noticePayload{
		Type:       notice.Type(),
		Message:    notice.Message,
		Detail:     notice.Detail,
		DurationMS: notice.Duration.Milliseconds(),
		At:         notice.At,
	}
}

type RestHandler struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
	Results *event.Bus[syncqueue.Result]
	Status  StatusProvider
}

func (h *RestHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSONError(w, methodNotAllowed(w, "GET, HEAD"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := h.Metrics.WritePrometheus(w); err != nil {
		h.Logger.Warn("metrics write failed", map[string]string{
			logging.FieldError: err.Error(),
		})
	}
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.Status == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "sync service unavailable"}
	}
	response := statusResponse{
		Status:     h.Status.Status(),
		Version:    version.Get(),
		ServerTime: time.Now().UTC(),
		Lanes:      make(map[string]metrics.Snapshot, len(syncqueue.Kinds)),
		Rejected:   h.Metrics.Rejected(),
	}
	for _, kind := range syncqueue.Kinds {
		response.Lanes[string(kind)] = h.Metrics.Lane(string(kind))
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleResults(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.Results == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "result stream unavailable"}
	}
	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		return apiErr
	}
	var kind syncqueue.Kind
	if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
		parsed, err := syncqueue.ParseKind(raw)
		if err != nil {
			return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
		}
		kind = parsed
	}

	history := h.Results.History(0)
	payload := make([]resultPayload, 0, len(history))
	for _, result := range history {
		if kind != "" && result.Kind != kind {
			continue
		}
		payload = append(payload, newResultPayload(result))
	}
	if len(payload) > limit {
		payload = payload[len(payload)-limit:]
	}
	writeJSON(w, http.StatusOK, payload)
	return nil
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	buffer := h.Logger.Buffer()
	if buffer == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "log buffer unavailable"}
	}
	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		return apiErr
	}
	minLevel := logging.LevelDebug
	if raw := strings.TrimSpace(r.URL.Query().Get("level")); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid level"}
		}
		minLevel = level
	}

	entries := buffer.List()
	filtered := make([]logging.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if logging.AtLeast(entry.Level, minLevel) {
			filtered = append(filtered, entry)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	writeJSON(w, http.StatusOK, filtered)
	return nil
}

func parseLimit(r *http.Request) (int, *apiError) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
