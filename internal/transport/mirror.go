package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const mirrorBackend = "mirror"

// Mirror copies files from a local root into another billy filesystem,
// typically a mounted share or a second directory.
type Mirror struct {
	source billy.Filesystem
	dest   billy.Filesystem
	loc    location
}

type MirrorOptions struct {
	Root   string
	Prefix string
	// Source reads local files relative to Root. Defaults to osfs at Root.
	Source billy.Filesystem
	// Dest receives the files. Required.
	Dest billy.Filesystem
}

func NewMirror(opts MirrorOptions) (*Mirror, error) {
	if opts.Root == "" {
		return nil, errors.New("mirror root is required")
	}
	if opts.Dest == nil {
		return nil, errors.New("mirror destination is required")
	}
	source := opts.Source
	if source == nil {
		source = osfs.New(opts.Root)
	}
	return &Mirror{
		source: source,
		dest:   opts.Dest,
		loc:    location{root: opts.Root, prefix: opts.Prefix},
	}, nil
}

// NewDirMirror mirrors root into the local directory target.
func NewDirMirror(root, target, prefix string) (*Mirror, error) {
	return NewMirror(MirrorOptions{Root: root, Prefix: prefix, Dest: osfs.New(target)})
}

func (m *Mirror) Upload(ctx context.Context, localPath string) error {
	rel, key, err := m.loc.resolve(localPath)
	if err != nil {
		return NewError(mirrorBackend, "upload", localPath, err)
	}
	if err := ctx.Err(); err != nil {
		return NewError(mirrorBackend, "upload", localPath, err).WithKey(key)
	}

	info, err := m.source.Lstat(rel)
	if err != nil {
		return NewError(mirrorBackend, "upload", localPath, err).WithKey(key)
	}
	if info.IsDir() {
		if err := m.dest.MkdirAll(destPath(key), 0o755); err != nil {
			return NewError(mirrorBackend, "upload", localPath, err).WithKey(key)
		}
		return nil
	}
	if err := m.copyFile(rel, key, info.Mode().Perm()); err != nil {
		return NewError(mirrorBackend, "upload", localPath, err).WithKey(key)
	}
	return nil
}

func (m *Mirror) copyFile(rel, key string, perm os.FileMode) error {
	src, err := m.source.Open(rel)
	if err != nil {
		return err
	}
	defer src.Close()

	target := destPath(key)
	if dir := path.Dir(target); dir != "." && dir != "/" {
		if err := m.dest.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	dst, err := m.dest.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Remove deletes the mirrored copy; a copy that is already gone is not an
// error.
func (m *Mirror) Remove(ctx context.Context, localPath string) error {
	_, key, err := m.loc.resolve(localPath)
	if err != nil {
		return NewError(mirrorBackend, "remove", localPath, err)
	}
	if err := ctx.Err(); err != nil {
		return NewError(mirrorBackend, "remove", localPath, err).WithKey(key)
	}
	if key == "" {
		return NewError(mirrorBackend, "remove", localPath, errors.New("refusing to remove the mirror root"))
	}
	if err := util.RemoveAll(m.dest, destPath(key)); err != nil && !os.IsNotExist(err) {
		return NewError(mirrorBackend, "remove", localPath, err).WithKey(key)
	}
	return nil
}

func destPath(key string) string {
	if key == "" {
		return "."
	}
	return key
}
