// Package manifest provides loading and validation of hirelane seed
// manifests.
//
// A seed manifest is a YAML or JSON file that lists candidates and jobs to
// create, and optionally asks for a batch of generated records. Manifests
// are validated against an embedded JSON Schema that disallows unknown
// properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	jobs:
//	  - title: Backend Engineer
//	    tags: [remote]
//	candidates:
//	  - name: Ada Lovelace
//	    email: ada@example.com
//	    stage: interview
//	generate:
//	  candidates: 200
//	  jobs: 10
//	  seed: 42
package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Manifest represents a validated seed manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	Candidates []CandidateSeed `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Jobs       []JobSeed       `json:"jobs,omitempty" yaml:"jobs,omitempty"`

	// Generate asks for synthetic records in addition to the listed ones.
	Generate *GenerateConfig `json:"generate,omitempty" yaml:"generate,omitempty"`
}

// CandidateSeed is one listed candidate.
type CandidateSeed struct {
	Name  string   `json:"name" yaml:"name"`
	Email string   `json:"email" yaml:"email"`
	Stage string   `json:"stage,omitempty" yaml:"stage,omitempty"`
	Tags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// AppliedAt accepts "2024-01-15" or RFC 3339.
	AppliedAt string `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}

// JobSeed is one listed job.
type JobSeed struct {
	Title  string   `json:"title" yaml:"title"`
	Slug   string   `json:"slug,omitempty" yaml:"slug,omitempty"`
	Status string   `json:"status,omitempty" yaml:"status,omitempty"`
	Tags   []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// GenerateConfig controls synthetic record generation.
type GenerateConfig struct {
	Candidates int    `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Jobs       int    `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	Seed       uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// MaxAgeDays spreads generated application dates over this many days.
	MaxAgeDays int `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
}

// Default values for optional configuration fields.
const (
	// DefaultVersion is the current manifest schema version.
	DefaultVersion = "1.0"

	// DefaultMaxAgeDays matches the spread of the demo data set.
	DefaultMaxAgeDays = 60

	// DefaultSeed makes generation reproducible when no seed is given.
	DefaultSeed uint64 = 1
)

// Default returns the built-in demo manifest: a thousand candidates spread
// across every stage and ten job postings.
func Default() *Manifest {
	m := &Manifest{
		Version:  DefaultVersion,
		Generate: &GenerateConfig{Candidates: 1000, Jobs: 10},
	}
	m.ApplyDefaults()
	return m
}

// ApplyDefaults fills in default values for optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	if g := m.Generate; g != nil {
		if g.Seed == 0 {
			g.Seed = DefaultSeed
		}
		if g.MaxAgeDays == 0 {
			g.MaxAgeDays = DefaultMaxAgeDays
		}
	}
}

// Total returns the number of records the manifest will create.
func (m *Manifest) Total() int {
	n := len(m.Candidates) + len(m.Jobs)
	if m.Generate != nil {
		n += m.Generate.Candidates + m.Generate.Jobs
	}
	return n
}

// NewCandidate converts the seed to a pipeline input.
func (c CandidateSeed) NewCandidate() (pipeline.NewCandidate, error) {
	in := pipeline.NewCandidate{
		Name:  c.Name,
		Email: c.Email,
		Stage: c.Stage,
		Tags:  c.Tags,
	}
	if strings.TrimSpace(c.AppliedAt) != "" {
		at, err := parseDate(c.AppliedAt)
		if err != nil {
			return pipeline.NewCandidate{}, err
		}
		in.AppliedAt = &at
	}
	return in, nil
}

// NewJob converts the seed to a pipeline input.
func (j JobSeed) NewJob() pipeline.NewJob {
	return pipeline.NewJob{Title: j.Title, Slug: j.Slug, Status: j.Status, Tags: j.Tags}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid applied_at %q", ordering.ErrBadRequest, s)
}
