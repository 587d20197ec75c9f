package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Matcher evaluates include and exclude patterns against item keys.
//
// A key matches when it matches at least one include and no exclude.
// With no includes every key is included. The Matcher is safe for
// concurrent use after creation.
type Matcher struct {
	includes []pattern
	excludes []pattern
}

type pattern struct {
	raw     string
	literal string
	glob    bool
}

func (p pattern) match(key string) bool {
	if !p.glob {
		return p.literal == key
	}
	ok, err := doublestar.Match(p.raw, key)
	return err == nil && ok
}

// Config configures a Matcher.
type Config struct {
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
}

// Empty reports whether no patterns are configured.
func (c Config) Empty() bool {
	return len(c.Includes) == 0 && len(c.Excludes) == 0
}

// Errors returned by Matcher operations.
var (
	// ErrNoPatterns is returned when neither includes nor excludes are given.
	ErrNoPatterns = errors.New("at least one include or exclude pattern is required")

	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
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

// New compiles cfg into a Matcher.
func New(cfg Config) (*Matcher, error) {
	if cfg.Empty() {
		return nil, ErrNoPatterns
	}
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Matcher{includes: includes, excludes: excludes}, nil
}

func compile(raws []string) ([]pattern, error) {
	out := make([]pattern, 0, len(raws))
	for _, raw := range raws {
		n := NormalizePattern(raw)
		if n == "" || !doublestar.ValidatePattern(n) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		out = append(out, pattern{raw: n, literal: unescape(n), glob: IsGlobPattern(n)})
	}
	return out, nil
}

// Match reports whether key passes the patterns. A nil Matcher matches
// everything.
func (m *Matcher) Match(key string) bool {
	if m == nil {
		return true
	}
	key = NormalizeKey(key)
	if len(m.includes) > 0 {
		matched := false
		for _, inc := range m.includes {
			if inc.match(key) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, exc := range m.excludes {
		if exc.match(key) {
			return false
		}
	}
	return true
}

// MatchItem matches the item's Key.
func (m *Matcher) MatchItem(it pipeline.Item) bool {
	return m.Match(Key(it))
}

// IncludePatterns returns the normalized include patterns.
func (m *Matcher) IncludePatterns() []string {
	return raws(m.includes)
}

// ExcludePatterns returns the normalized exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return raws(m.excludes)
}

func raws(ps []pattern) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.raw
	}
	return out
}
