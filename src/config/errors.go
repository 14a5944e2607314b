package config

import (
	"fmt"
	"strings"
)

// ConfigError reports a structurally invalid configuration. It lists every
// problem found, not just the first.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration (%d problems):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// SelectorCompileError reports a tag selector that is not a valid regex.
type SelectorCompileError struct {
	Build   string
	Pattern string
	Err     error
}

func (e *SelectorCompileError) Error() string {
	return fmt.Sprintf("build %q: invalid selector %q: %v", e.Build, e.Pattern, e.Err)
}

func (e *SelectorCompileError) Unwrap() error { return e.Err }
