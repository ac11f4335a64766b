package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFilesPattern is used when a watcher section omits `files`.
const DefaultFilesPattern = "**/*"

// Pattern is the `files` setting of a watcher: a glob relative to the root,
// or disabled when set to false or an empty string.
type Pattern struct {
	Glob     string
	Disabled bool
}

func Glob(glob string) Pattern {
	return Pattern{Glob: glob}
}

func DisabledPattern() Pattern {
	return Pattern{Disabled: true}
}

// IsDisabled reports whether no files should be watched.
func (p Pattern) IsDisabled() bool {
	return p.Disabled || strings.TrimSpace(p.Glob) == ""
}

func (p Pattern) String() string {
	if p.IsDisabled() {
		return "false"
	}
	return p.Glob
}

func (p *Pattern) set(value any) error {
	switch typed := value.(type) {
	case bool:
		if typed {
			*p = Glob(DefaultFilesPattern)
		} else {
			*p = DisabledPattern()
		}
	case string:
		if strings.TrimSpace(typed) == "" {
			*p = DisabledPattern()
		} else {
			*p = Glob(strings.TrimSpace(typed))
		}
	default:
		return fmt.Errorf("files must be a glob string or false, got %T", value)
	}
	return nil
}

func (p *Pattern) UnmarshalTOML(value any) error {
	return p.set(value)
}

func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: files must be a glob string or false", node.Line)
	}
	if node.Tag == "!!bool" {
		var flag bool
		if err := node.Decode(&flag); err != nil {
			return err
		}
		return p.set(flag)
	}
	return p.set(node.Value)
}

func (p Pattern) MarshalYAML() (any, error) {
	if p.IsDisabled() {
		return false, nil
	}
	return p.Glob, nil
}
