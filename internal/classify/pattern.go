package classify

import (
	"errors"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

var ErrEmptyPattern = errors.New("empty file pattern")

// Matcher matches root-relative slash paths against a file glob such as
// "**/*.go" or "src/**". A leading "**/" also matches at the root, so
// "**/*" covers "x.txt" as well as "a/b/x.txt".
type Matcher struct {
	source string
	globs  []glob.Glob
}

func CompileMatcher(pattern string) (*Matcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	pattern = strings.TrimPrefix(pattern, "./")
	variants := []string{pattern}
	if trimmed := strings.TrimPrefix(pattern, "**/"); trimmed != pattern && trimmed != "" {
		variants = append(variants, trimmed)
	}
	matcher := &Matcher{source: pattern}
	for _, variant := range variants {
		compiled, err := glob.Compile(variant, '/')
		if err != nil {
			return nil, err
		}
		matcher.globs = append(matcher.globs, compiled)
	}
	return matcher, nil
}

// Match reports whether rel matches. A nil Matcher matches everything.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return true
	}
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	for _, compiled := range m.globs {
		if compiled.Match(rel) {
			return true
		}
	}
	return false
}

func (m *Matcher) String() string {
	if m == nil {
		return "**"
	}
	return m.source
}
