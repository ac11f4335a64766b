// Package classify decides which changed paths are eligible for
// synchronization. Rejected paths are dropped before they reach a pending set.
package classify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Classifier filters paths before they are queued.
type Classifier interface {
	Valid(path string) bool
}

// Func adapts a plain function to Classifier.
type Func func(path string) bool

func (f Func) Valid(path string) bool {
	return f(path)
}

// AcceptAll is a Classifier that never rejects.
var AcceptAll = Func(func(path string) bool { return path != "" })

// DefaultIgnoredNames lists directory and file names that are never synced.
var DefaultIgnoredNames = []string{
	".git",
	".svn",
	".hg",
	".DS_Store",
	"node_modules",
	"__pycache__",
	".idea",
	".vscode",
}

// Options configures an ignore-list classifier.
type Options struct {
	// IgnoredNames are matched against every path segment.
	IgnoredNames []string
	// IgnorePatterns are globs matched against the slash-separated path.
	IgnorePatterns []string
	// IgnoredSuffixes are matched against the base name, e.g. ".swp".
	IgnoredSuffixes []string
}

// IgnoreList rejects relative, empty and ignored paths.
type IgnoreList struct {
	names    map[string]struct{}
	suffixes []string
	patterns []glob.Glob
}

// New compiles an IgnoreList. Invalid globs are reported as errors.
func New(options Options) (*IgnoreList, error) {
	names := options.IgnoredNames
	if names == nil {
		names = DefaultIgnoredNames
	}
	list := &IgnoreList{
		names:    make(map[string]struct{}, len(names)),
		suffixes: append([]string(nil), options.IgnoredSuffixes...),
	}
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			list.names[name] = struct{}{}
		}
	}
	for _, pattern := range options.IgnorePatterns {
		compiled, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", pattern, err)
		}
		list.patterns = append(list.patterns, compiled)
	}
	return list, nil
}

// Valid reports whether a path should be synchronized.
func (list *IgnoreList) Valid(path string) bool {
	if path == "" || !filepath.IsAbs(path) {
		return false
	}
	if list == nil {
		return true
	}
	slashPath := filepath.ToSlash(filepath.Clean(path))
	for _, segment := range strings.Split(slashPath, "/") {
		if _, ignored := list.names[segment]; ignored {
			return false
		}
	}
	base := filepath.Base(path)
	for _, suffix := range list.suffixes {
		if suffix != "" && strings.HasSuffix(base, suffix) {
			return false
		}
	}
	for _, pattern := range list.patterns {
		if pattern.Match(slashPath) {
			return false
		}
	}
	return true
}
