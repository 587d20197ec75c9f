// Package pipeline is the authoritative side of the recruiting board: it
// reads whole groups from a Gateway, computes new orders with package
// ordering, and writes every affected row back as one bulk overwrite.
package pipeline

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/3leaps/hirelane/pkg/ordering"
)

// Kind selects which ordered collection an operation targets.
type Kind string

const (
	KindCandidate Kind = "candidate"
	KindJob       Kind = "job"
)

// Move describes a same-group reorder; see ordering.Move.
type Move = ordering.Move

// GlobalGroup is the single group every job belongs to.
const GlobalGroup = "global"

// ParseKind accepts singular and plural spellings ("job", "jobs").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "candidate", "candidates":
		return KindCandidate, nil
	case "job", "jobs":
		return KindJob, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ordering.ErrBadRequest, s)
}

// Plural is the collection name used in URLs and CLI output.
func (k Kind) Plural() string {
	return string(k) + "s"
}

// Stage is a candidate pipeline stage and the candidate's group key.
type Stage string

const (
	StageApplied   Stage = "applied"
	StageScreening Stage = "screening"
	StageInterview Stage = "interview"
	StageOffer     Stage = "offer"
	StageHired     Stage = "hired"
	StageRejected  Stage = "rejected"
)

// Stages lists the canonical stages in board order.
var Stages = []Stage{StageApplied, StageScreening, StageInterview, StageOffer, StageHired, StageRejected}

// ParseStage converts a raw token to a canonical Stage.
// The legacy token "screen" maps to StageScreening.
func ParseStage(s string) (Stage, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "screen" {
		return StageScreening, nil
	}
	if st := Stage(raw); slices.Contains(Stages, st) {
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown stage %q", ordering.ErrBadRequest, s)
}

// JobStatus is the publication state of a job posting.
type JobStatus string

const (
	JobStatusOpen     JobStatus = "open"
	JobStatusClosed   JobStatus = "closed"
	JobStatusArchived JobStatus = "archived"
)

// ParseJobStatus converts a raw token to a JobStatus. Empty means open.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return JobStatusOpen, nil
	case JobStatusOpen, JobStatusClosed, JobStatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown job status %q", ordering.ErrBadRequest, s)
}

// ValidateGroup checks that group is a legal group key for kind.
func ValidateGroup(kind Kind, group string) (string, error) {
	switch kind {
	case KindCandidate:
		st, err := ParseStage(group)
		if err != nil {
			return "", err
		}
		return string(st), nil
	case KindJob:
		g := strings.ToLower(strings.TrimSpace(group))
		if g == "" || g == GlobalGroup {
			return GlobalGroup, nil
		}
		return "", fmt.Errorf("%w: jobs only have the %q group", ordering.ErrBadRequest, GlobalGroup)
	}
	return "", fmt.Errorf("%w: unknown kind %q", ordering.ErrBadRequest, kind)
}

// Item is a candidate or job together with its ordering fields.
// Candidate fields are empty for jobs and vice versa.
type Item struct {
	ordering.Entity
	Kind Kind `json:"kind"`

	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`

	Title  string    `json:"title,omitempty"`
	Slug   string    `json:"slug,omitempty"`
	Status JobStatus `json:"status,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// Label returns a short human-readable name for the item.
func (it Item) Label() string {
	if it.Kind == KindJob {
		return it.Title
	}
	return it.Name
}

// Clone returns a deep copy of it.
func (it Item) Clone() Item {
	it.Tags = slices.Clone(it.Tags)
	if it.AppliedAt != nil {
		at := *it.AppliedAt
		it.AppliedAt = &at
	}
	return it
}

// CloneItems deep-copies a slice of items.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// Entities projects items to their ordering fields.
func Entities(items []Item) []ordering.Entity {
	out := make([]ordering.Entity, len(items))
	for i, it := range items {
		out[i] = it.Entity
	}
	return out
}

// ApplyEntities returns items rearranged to match the sequence of entities,
// with each item's ordering fields replaced. Items without a matching
// entity are dropped; entities without a matching item are skipped.
func ApplyEntities(items []Item, entities []ordering.Entity) []Item {
	byID := make(map[string]Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	out := make([]Item, 0, len(entities))
	for _, e := range entities {
		it, ok := byID[e.ID]
		if !ok {
			continue
		}
		it = it.Clone()
		it.Entity = e
		out = append(out, it)
	}
	return out
}

// SortItems returns items sorted by the ordering index rules.
func SortItems(items []Item) []Item {
	return ApplyEntities(items, ordering.Sorted(Entities(items)))
}

// Slugify lowercases s and collapses runs of non-alphanumerics into '-'.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
