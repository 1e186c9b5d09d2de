// Package match selects engines by name.
//
// A name is selected when it contains the substring filter, matches at least
// one include glob (when any are given), matches no exclude glob, and
// matches the optional regular expression. An empty Config selects every
// name.
package match

import (
	"errors"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates engine names against a Config.
//
// The Matcher is safe for concurrent use after creation. A nil *Matcher
// matches every name.
type Matcher struct {
	filter   string
	includes []string
	excludes []string
	regex    *regexp.Regexp
}

// Config configures a Matcher.
type Config struct {
	// Filter is a case-sensitive substring the name must contain.
	// Empty disables substring filtering.
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`

	// Includes are glob patterns; the name must match at least one.
	// Empty means every name is included.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`

	// Excludes are glob patterns; the name must match none.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`

	// Regex is an optional regular expression applied after globs.
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`
}

// Errors returned by New.
var (
	// ErrInvalidPattern is returned when a glob cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidRegex is returned when the regular expression does not compile.
	ErrInvalidRegex = errors.New("invalid regular expression")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher from the given configuration.
//
// Returns a *PatternError if any glob or the regex is invalid.
func New(cfg Config) (*Matcher, error) {
	m := &Matcher{filter: cfg.Filter}

	for _, raw := range cfg.Includes {
		p := strings.TrimSpace(raw)
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		m.includes = append(m.includes, p)
	}
	for _, raw := range cfg.Excludes {
		p := strings.TrimSpace(raw)
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		m.excludes = append(m.excludes, p)
	}

	if cfg.Regex != "" {
		re, err := regexp.Compile(cfg.Regex)
		if err != nil {
			return nil, &PatternError{Pattern: cfg.Regex, Err: errors.Join(ErrInvalidRegex, err)}
		}
		m.regex = re
	}
	return m, nil
}

// Substring returns a Matcher that applies only the substring filter.
func Substring(filter string) *Matcher {
	return &Matcher{filter: filter}
}

// Match reports whether name is selected.
func (m *Matcher) Match(name string) bool {
	if m == nil {
		return true
	}
	if m.filter != "" && !strings.Contains(name, m.filter) {
		return false
	}

	if len(m.includes) > 0 {
		matched := false
		for _, inc := range m.includes {
			if matchPattern(inc, name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, name) {
			return false
		}
	}

	if m.regex != nil && !m.regex.MatchString(name) {
		return false
	}
	return true
}

// IsEmpty reports whether the matcher selects every name.
func (m *Matcher) IsEmpty() bool {
	return m == nil || (m.filter == "" && len(m.includes) == 0 && len(m.excludes) == 0 && m.regex == nil)
}

// String returns a human-readable description of the selection.
func (m *Matcher) String() string {
	if m.IsEmpty() {
		return "all engines"
	}
	var parts []string
	if m.filter != "" {
		parts = append(parts, "contains "+quote(m.filter))
	}
	if len(m.includes) > 0 {
		parts = append(parts, "include "+strings.Join(m.includes, ","))
	}
	if len(m.excludes) > 0 {
		parts = append(parts, "exclude "+strings.Join(m.excludes, ","))
	}
	if m.regex != nil {
		parts = append(parts, "regex "+m.regex.String())
	}
	return strings.Join(parts, "; ")
}

func quote(s string) string {
	return `"` + s + `"`
}

func matchPattern(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}
