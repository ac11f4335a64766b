// Package syncqueue batches filesystem changes into debounced upload and
// remove flushes. Each kind owns a PendingSet and a Scheduler; a flush drains
// the set and hands every path to the transport concurrently.
package syncqueue

import (
	"fmt"
	"time"
)

// Kind names a sync lane.
type Kind string

const (
	KindUpload Kind = "upload"
	KindRemove Kind = "remove"
)

// Kinds lists the lanes in a stable order.
var Kinds = []Kind{KindUpload, KindRemove}

func (k Kind) Valid() bool {
	return k == KindUpload || k == KindRemove
}

// Verb is the past tense used in success notices.
func (k Kind) Verb() string {
	switch k {
	case KindUpload:
		return "uploaded"
	case KindRemove:
		return "removed"
	default:
		return string(k)
	}
}

func ParseKind(value string) (Kind, error) {
	kind := Kind(value)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown sync kind %q", value)
	}
	return kind, nil
}

// Result is the outcome of one transfer.
type Result struct {
	Path        string        `json:"path"`
	Kind        Kind          `json:"kind"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
	Err         error         `json:"-"`
}

func (r Result) Type() string {
	return string(r.Kind)
}

func (r Result) OK() bool {
	return r.Err == nil && r.Error == ""
}
