package pipeline

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/3leaps/hirelane/pkg/ordering"
)

// NewCandidate is the input for CreateCandidate.
type NewCandidate struct {
	Name      string     `json:"name" yaml:"name"`
	Email     string     `json:"email" yaml:"email"`
	Stage     string     `json:"stage,omitempty" yaml:"stage,omitempty"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	AppliedAt *time.Time `json:"appliedAt,omitempty" yaml:"applied_at,omitempty"`
}

// NewJob is the input for CreateJob.
type NewJob struct {
	Title  string   `json:"title" yaml:"title"`
	Slug   string   `json:"slug,omitempty" yaml:"slug,omitempty"`
	Status string   `json:"status,omitempty" yaml:"status,omitempty"`
	Tags   []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// CreateCandidate stores a candidate at the tail of its stage (applied by default).
func (s *Service) CreateCandidate(ctx context.Context, in NewCandidate) (Item, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Item{}, fmt.Errorf("%w: name is required", ordering.ErrBadRequest)
	}
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return Item{}, fmt.Errorf("%w: invalid email %q", ordering.ErrBadRequest, in.Email)
	}
	stage := StageApplied
	if strings.TrimSpace(in.Stage) != "" {
		st, err := ParseStage(in.Stage)
		if err != nil {
			return Item{}, err
		}
		stage = st
	}

	now := s.now()
	applied := now
	if in.AppliedAt != nil {
		applied = in.AppliedAt.UTC()
	}

	return s.insertAtTail(ctx, Item{
		Entity:    ordering.Entity{ID: s.newID(), Group: string(stage), CreatedAt: now, UpdatedAt: now},
		Kind:      KindCandidate,
		Name:      name,
		Email:     email,
		AppliedAt: &applied,
		Tags:      normalizeTags(in.Tags),
	})
}

// CreateJob stores a job at the tail of the global list. The slug is
// derived from the title when not given and must be unique.
func (s *Service) CreateJob(ctx context.Context, in NewJob) (Item, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Item{}, fmt.Errorf("%w: title is required", ordering.ErrBadRequest)
	}
	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return Item{}, fmt.Errorf("%w: title %q produces an empty slug", ordering.ErrBadRequest, title)
	}
	status, err := ParseJobStatus(in.Status)
	if err != nil {
		return Item{}, err
	}

	exists, err := s.gw.SlugExists(ctx, slug)
	if err != nil {
		return Item{}, err
	}
	if exists {
		return Item{}, fmt.Errorf("%w: slug %q already exists", ErrConflict, slug)
	}

	now := s.now()
	return s.insertAtTail(ctx, Item{
		Entity: ordering.Entity{ID: s.newID(), Group: GlobalGroup, CreatedAt: now, UpdatedAt: now},
		Kind:   KindJob,
		Title:  title,
		Slug:   slug,
		Status: status,
		Tags:   normalizeTags(in.Tags),
	})
}

func (s *Service) insertAtTail(ctx context.Context, it Item) (Item, error) {
	maxOrder, err := s.gw.MaxOrder(ctx, it.Kind, it.Group)
	if err != nil {
		return Item{}, err
	}
	it.Order = maxOrder + 1
	if err := s.gw.Insert(ctx, it); err != nil {
		return Item{}, err
	}
	return it, nil
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
