// Package transport moves a single local path to or from a remote. The
// engine calls Upload for created or modified paths and Remove for deleted
// ones; backends map the local path to a remote key relative to their root.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"

	"autosync/internal/pathutil"
)

type Transport interface {
	Upload(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

var (
	ErrNoRoute     = errors.New("no remote configured for path")
	ErrOutsideRoot = errors.New("path is outside the remote root")
)

// Error is a failed transfer with enough context to log it.
type Error struct {
	Op      string
	Backend string
	Path    string
	Key     string
	Err     error
}

func (e *Error) Error() string {
	op := e.Op
	if e.Backend != "" {
		op = e.Backend + "." + e.Op
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s -> %s: %v", op, e.Path, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(backend, op, path string, err error) *Error {
	return &Error{Op: op, Backend: backend, Path: path, Err: err}
}

func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// Func adapts a pair of functions to a Transport.
type Func struct {
	UploadFunc func(ctx context.Context, path string) error
	RemoveFunc func(ctx context.Context, path string) error
}

func (f Func) Upload(ctx context.Context, path string) error {
	if f.UploadFunc == nil {
		return nil
	}
	return f.UploadFunc(ctx, path)
}

func (f Func) Remove(ctx context.Context, path string) error {
	if f.RemoveFunc == nil {
		return nil
	}
	return f.RemoveFunc(ctx, path)
}

// location resolves a local path against a backend root and key prefix.
type location struct {
	root   string
	prefix string
}

func (loc location) resolve(path string) (rel string, key string, err error) {
	rel, err = pathutil.Rel(loc.root, path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrOutsideRoot, err)
	}
	return rel, pathutil.JoinKey(loc.prefix, rel), nil
}

// sniffContentType reads the head of file to detect its media type and
// rewinds it for the upload.
func sniffContentType(file billy.File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mimetype.Detect(head[:n]).String(), nil
}
