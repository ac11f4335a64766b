// Package app wires the sync engine, the watcher registry, the remotes and
// the status surface into one service.
package app

import (
	"context"
	"fmt"

	"autosync/internal/classify"
	"autosync/internal/config"
	"autosync/internal/pathutil"
	"autosync/internal/transport"
)

type BuildError struct {
	Stage string
	Root  string
	Err   error
}

func (e BuildError) Error() string {
	prefix := e.Stage
	if e.Root != "" {
		prefix = fmt.Sprintf("%s %s", e.Stage, e.Root)
	}
	if e.Err == nil {
		return prefix
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

func (e BuildError) Unwrap() error {
	return e.Err
}

const (
	StageClassifier = "classifier"
	StageTransport  = "transport"
	StageDispatcher = "dispatcher"
	StageEngine     = "engine"
	StageRegistry   = "registry"
	StageWatch      = "watch"
	StageServer     = "server"
)

// TransportFactory builds the remote of one root.
type TransportFactory func(ctx context.Context, root config.RootSettings) (transport.Transport, error)

// BuildTransport is the default TransportFactory.
func BuildTransport(ctx context.Context, root config.RootSettings) (transport.Transport, error) {
	remote := root.Remote
	switch remote.Kind {
	case config.RemoteMirror, "":
		return transport.NewDirMirror(root.Path, remote.Target, remote.Prefix)
	case config.RemoteS3:
		return transport.NewS3(ctx, transport.S3Options{
			Root:      root.Path,
			Bucket:    remote.Bucket,
			Prefix:    remote.Prefix,
			Region:    remote.Region,
			Endpoint:  remote.Endpoint,
			PathStyle: remote.PathStyle,
		})
	case config.RemoteMinio:
		return transport.NewMinio(transport.MinioOptions{
			Root:     root.Path,
			Endpoint: remote.Endpoint,
			Bucket:   remote.Bucket,
			Prefix:   remote.Prefix,
			Secure:   remote.Secure,
		})
	default:
		return nil, fmt.Errorf("%q: %w", remote.Kind, config.ErrUnknownRemote)
	}
}

// BuildClassifier accepts paths under one of the configured roots that the
// ignore settings do not exclude.
func BuildClassifier(settings config.Settings) (classify.Classifier, error) {
	ignore, err := classify.New(settings.Ignore.ClassifyOptions())
	if err != nil {
		return nil, BuildError{Stage: StageClassifier, Err: err}
	}
	roots := settings.RootPaths()
	return classify.Func(func(path string) bool {
		if !ignore.Valid(path) {
			return false
		}
		for _, root := range roots {
			if pathutil.Within(root, path) {
				return true
			}
		}
		return false
	}), nil
}
