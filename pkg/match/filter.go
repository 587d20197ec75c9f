package match

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Filter evaluates whether an item passes filter criteria.
type Filter interface {
	// Match returns true if the item passes the filter.
	Match(it pipeline.Item) bool

	// String returns a human-readable description of the filter.
	String() string
}

// FilterConfig holds filter criteria from a query string, manifest or
// CLI flags. Zero fields impose no constraint.
type FilterConfig struct {
	// Tags lists tags an item must carry, all of them.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Status lists accepted job statuses. Candidates never match a status
	// filter.
	Status []string `json:"status,omitempty" yaml:"status,omitempty"`

	// Applied bounds a candidate's application date.
	Applied *DateFilterConfig `json:"applied,omitempty" yaml:"applied,omitempty"`

	// Created bounds the item creation time.
	Created *DateFilterConfig `json:"created,omitempty" yaml:"created,omitempty"`

	// NameRegex is applied to the candidate name or job title.
	NameRegex string `json:"name_regex,omitempty" yaml:"name_regex,omitempty"`

	// Search is a case-insensitive substring of a candidate's name or email,
	// or a job's title or slug.
	Search string `json:"search,omitempty" yaml:"search,omitempty"`
}

// DateFilterConfig specifies date range constraints.
type DateFilterConfig struct {
	// After is inclusive. Supports "2024-01-15" or "2024-01-15T10:30:00Z".
	After string `json:"after,omitempty" yaml:"after,omitempty"`

	// Before is exclusive.
	Before string `json:"before,omitempty" yaml:"before,omitempty"`
}

// Filter errors.
var (
	ErrInvalidDate   = errors.New("invalid date value")
	ErrInvalidRegex  = errors.New("invalid regex pattern")
	ErrInvalidStatus = errors.New("invalid status filter")
)

// TagFilter requires every configured tag.
type TagFilter struct {
	tags []string
}

// NewTagFilter returns nil when tags is empty.
func NewTagFilter(tags []string) *TagFilter {
	var norm []string
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && !slices.Contains(norm, t) {
			norm = append(norm, t)
		}
	}
	if len(norm) == 0 {
		return nil
	}
	return &TagFilter{tags: norm}
}

// Match returns true if the item carries every tag.
func (f *TagFilter) Match(it pipeline.Item) bool {
	for _, want := range f.tags {
		if !slices.ContainsFunc(it.Tags, func(have string) bool { return strings.EqualFold(have, want) }) {
			return false
		}
	}
	return true
}

func (f *TagFilter) String() string {
	return "tags: " + strings.Join(f.tags, "+")
}

// StatusFilter accepts jobs in any of the configured statuses.
type StatusFilter struct {
	statuses []pipeline.JobStatus
}

// NewStatusFilter returns nil when statuses is empty.
func NewStatusFilter(statuses []string) (*StatusFilter, error) {
	f := &StatusFilter{}
	for _, s := range statuses {
		if strings.TrimSpace(s) == "" {
			continue
		}
		st, err := pipeline.ParseJobStatus(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
		}
		if !slices.Contains(f.statuses, st) {
			f.statuses = append(f.statuses, st)
		}
	}
	if len(f.statuses) == 0 {
		return nil, nil
	}
	return f, nil
}

// Match returns true for jobs whose status is accepted.
func (f *StatusFilter) Match(it pipeline.Item) bool {
	return it.Kind == pipeline.KindJob && slices.Contains(f.statuses, it.Status)
}

func (f *StatusFilter) String() string {
	parts := make([]string, len(f.statuses))
	for i, s := range f.statuses {
		parts[i] = string(s)
	}
	return "status: " + strings.Join(parts, "|")
}

// DateField selects the timestamp a DateFilter inspects.
type DateField string

const (
	DateApplied DateField = "applied"
	DateCreated DateField = "created"
)

// DateFilter filters items by a date range.
type DateFilter struct {
	field  DateField
	after  time.Time // zero means no after constraint
	before time.Time // zero means no before constraint
}

// NewDateFilter creates a date filter from config.
// Returns nil if no date constraints are specified.
func NewDateFilter(field DateField, cfg *DateFilterConfig) (*DateFilter, error) {
	if cfg == nil || (cfg.After == "" && cfg.Before == "") {
		return nil, nil
	}

	f := &DateFilter{field: field}

	if cfg.After != "" {
		t, err := ParseDate(cfg.After)
		if err != nil {
			return nil, fmt.Errorf("%s after: %w", field, err)
		}
		f.after = t
	}

	if cfg.Before != "" {
		t, err := ParseDate(cfg.Before)
		if err != nil {
			return nil, fmt.Errorf("%s before: %w", field, err)
		}
		f.before = t
	}

	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, f.after, f.before)
	}

	return f, nil
}

// Match returns true if the item's timestamp is within range. Items
// without the timestamp never match.
func (f *DateFilter) Match(it pipeline.Item) bool {
	var at time.Time
	switch f.field {
	case DateApplied:
		if it.AppliedAt == nil {
			return false
		}
		at = *it.AppliedAt
	default:
		at = it.CreatedAt
	}
	if at.IsZero() {
		return false
	}
	if !f.after.IsZero() && at.Before(f.after) {
		return false
	}
	if !f.before.IsZero() && !at.Before(f.before) {
		return false
	}
	return true
}

func (f *DateFilter) String() string {
	switch {
	case !f.after.IsZero() && !f.before.IsZero():
		return fmt.Sprintf("%s: %s to %s", f.field, f.after.Format("2006-01-02"), f.before.Format("2006-01-02"))
	case !f.after.IsZero():
		return fmt.Sprintf("%s: on/after %s", f.field, f.after.Format("2006-01-02"))
	default:
		return fmt.Sprintf("%s: before %s", f.field, f.before.Format("2006-01-02"))
	}
}

// RegexFilter filters items by their label.
type RegexFilter struct {
	pattern *regexp.Regexp
	raw     string
}

// NewRegexFilter creates a regex filter from pattern string.
// Returns nil if pattern is empty.
func NewRegexFilter(pattern string) (*RegexFilter, error) {
	if pattern == "" {
		return nil, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}

	return &RegexFilter{pattern: re, raw: pattern}, nil
}

// Match returns true if the item label matches the regex.
func (f *RegexFilter) Match(it pipeline.Item) bool {
	return f.pattern.MatchString(it.Label())
}

func (f *RegexFilter) String() string {
	return fmt.Sprintf("name_regex: %s", f.raw)
}

// SearchFilter is the free-text search of the list endpoints.
type SearchFilter struct {
	needle string
}

// NewSearchFilter returns nil when q is blank.
func NewSearchFilter(q string) *SearchFilter {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	return &SearchFilter{needle: q}
}

// Match returns true if any searchable field contains the needle.
func (f *SearchFilter) Match(it pipeline.Item) bool {
	fields := []string{it.Name, it.Email}
	if it.Kind == pipeline.KindJob {
		fields = []string{it.Title, it.Slug}
	}
	for _, s := range fields {
		if strings.Contains(strings.ToLower(s), f.needle) {
			return true
		}
	}
	return false
}

func (f *SearchFilter) String() string {
	return fmt.Sprintf("search: %q", f.needle)
}

// CompositeFilter combines multiple filters with AND semantics.
type CompositeFilter struct {
	filters []Filter
}

// NewCompositeFilter creates a composite filter from the given filters.
// Nil filters are ignored. Returns nil if no non-nil filters provided.
func NewCompositeFilter(filters ...Filter) *CompositeFilter {
	var nonNil []Filter
	for _, f := range filters {
		if f != nil {
			nonNil = append(nonNil, f)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return &CompositeFilter{filters: nonNil}
}

// NewFilterFromConfig creates a CompositeFilter from FilterConfig.
// Returns nil if no filters are configured.
func NewFilterFromConfig(cfg *FilterConfig) (*CompositeFilter, error) {
	if cfg == nil {
		return nil, nil
	}

	var filters []Filter

	if tf := NewTagFilter(cfg.Tags); tf != nil {
		filters = append(filters, tf)
	}

	sf, err := NewStatusFilter(cfg.Status)
	if err != nil {
		return nil, err
	}
	if sf != nil {
		filters = append(filters, sf)
	}

	for _, d := range []struct {
		field DateField
		cfg   *DateFilterConfig
	}{{DateApplied, cfg.Applied}, {DateCreated, cfg.Created}} {
		df, err := NewDateFilter(d.field, d.cfg)
		if err != nil {
			return nil, err
		}
		if df != nil {
			filters = append(filters, df)
		}
	}

	rf, err := NewRegexFilter(cfg.NameRegex)
	if err != nil {
		return nil, err
	}
	if rf != nil {
		filters = append(filters, rf)
	}

	if sf := NewSearchFilter(cfg.Search); sf != nil {
		filters = append(filters, sf)
	}

	if len(filters) == 0 {
		return nil, nil
	}
	return &CompositeFilter{filters: filters}, nil
}

// Match returns true if all filters pass. A nil CompositeFilter passes
// everything.
func (f *CompositeFilter) Match(it pipeline.Item) bool {
	if f == nil {
		return true
	}
	for _, filter := range f.filters {
		if !filter.Match(it) {
			return false
		}
	}
	return true
}

func (f *CompositeFilter) String() string {
	if f == nil || len(f.filters) == 0 {
		return "no filters"
	}
	parts := make([]string, len(f.filters))
	for i, filter := range f.filters {
		parts[i] = filter.String()
	}
	return strings.Join(parts, ", ")
}

// Filters returns the underlying filters.
func (f *CompositeFilter) Filters() []Filter {
	if f == nil {
		return nil
	}
	return f.filters
}

// Select returns the items that pass both m and f, preserving order.
// Either may be nil.
func Select(items []pipeline.Item, m *Matcher, f *CompositeFilter) []pipeline.Item {
	out := make([]pipeline.Item, 0, len(items))
	for _, it := range items {
		if m.MatchItem(it) && f.Match(it) {
			out = append(out, it)
		}
	}
	return out
}

// ParseDate parses an ISO 8601 date or datetime string.
//
// Supported formats:
//   - Date only: "2024-01-15" (interpreted as start of day UTC)
//   - Datetime: "2024-01-15T10:30:00Z"
//   - Datetime with offset: "2024-01-15T10:30:00+05:00"
//
// All times are normalized to UTC for comparison.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
