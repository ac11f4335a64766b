package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Field keys shared across components.
const (
	FieldCategory = "autosync.category"
	FieldPath     = "path"
	FieldRoot     = "root"
	FieldAction   = "action"
	FieldError    = "error"
)
