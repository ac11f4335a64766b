// Package pathutil holds the path helpers shared by the watcher, the sync
// queue and the transports: canonical identity, depth, display names and
// root-relative keys.
package pathutil

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Canonical returns the absolute, cleaned form of a path. Two events refer to
// the same pending item exactly when their canonical paths are equal.
func Canonical(pathValue string) string {
	if pathValue == "" {
		return ""
	}
	abs, err := filepath.Abs(pathValue)
	if err != nil {
		return filepath.Clean(pathValue)
	}
	return abs
}

// Depth counts the separator-delimited segments of a path.
// "/a/b/c" has depth 3, "/" has depth 0.
func Depth(pathValue string) int {
	slashPath := filepath.ToSlash(filepath.Clean(pathValue))
	slashPath = strings.TrimPrefix(slashPath, filepath.ToSlash(filepath.VolumeName(pathValue)))
	depth := 0
	for _, segment := range strings.Split(slashPath, "/") {
		if segment != "" && segment != "." {
			depth++
		}
	}
	return depth
}

// Base returns the last element of a path.
func Base(pathValue string) string {
	return filepath.Base(pathValue)
}

// Display shortens a path for status messages by replacing the user's home
// directory with "~".
func Display(pathValue string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return pathValue
	}
	if pathValue == home {
		return "~"
	}
	if Within(home, pathValue) {
		rel, err := filepath.Rel(home, pathValue)
		if err == nil {
			return "~" + string(os.PathSeparator) + rel
		}
	}
	return pathValue
}

// Within reports whether child is parent or lives beneath it.
func Within(parent, child string) bool {
	parentPath := filepath.Clean(parent)
	childPath := filepath.Clean(child)
	rel, err := filepath.Rel(parentPath, childPath)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return true
}

// Rel returns child relative to root using forward slashes, the form used
// for glob matching and for remote object keys.
func Rel(root, child string) (string, error) {
	if !Within(root, child) {
		return "", fmt.Errorf("path %q is outside root %q", child, root)
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(child))
	if err != nil {
		return "", err
	}
	return path.Clean(filepath.ToSlash(rel)), nil
}

// JoinKey joins a remote prefix and a root-relative key.
func JoinKey(prefix, rel string) string {
	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	rel = strings.TrimPrefix(rel, "/")
	if rel == "." {
		rel = ""
	}
	switch {
	case prefix == "":
		return rel
	case rel == "":
		return prefix
	default:
		return prefix + "/" + rel
	}
}
