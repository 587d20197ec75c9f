package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/hirelane/pkg/ordering"
)

// JobPatch edits a job. Nil fields are left unchanged.
type JobPatch struct {
	Title  *string   `json:"title,omitempty"`
	Status *string   `json:"status,omitempty"`
	Tags   *[]string `json:"tags,omitempty"`
}

// CandidatePatch edits a candidate. A Stage different from the current one
// transfers the candidate to the tail of that stage.
type CandidatePatch struct {
	Name  *string   `json:"name,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
	Stage *string   `json:"stage,omitempty"`
}

// UpdateJob applies p to job id. A new title regenerates the slug, which
// must not belong to another job.
func (s *Service) UpdateJob(ctx context.Context, id string, p JobPatch) (out Item, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(KindJob, "update", started, err) }()

	cur, err := s.Get(ctx, KindJob, id)
	if err != nil {
		return Item{}, err
	}
	next := cur.Clone()

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return Item{}, fmt.Errorf("%w: title is required", ordering.ErrBadRequest)
		}
		slug := Slugify(title)
		if slug == "" {
			return Item{}, fmt.Errorf("%w: title %q produces an empty slug", ordering.ErrBadRequest, title)
		}
		if slug != cur.Slug {
			exists, err := s.gw.SlugExists(ctx, slug)
			if err != nil {
				return Item{}, err
			}
			if exists {
				return Item{}, fmt.Errorf("%w: slug %q already exists", ErrConflict, slug)
			}
		}
		next.Title = title
		next.Slug = slug
	}
	if p.Status != nil {
		if strings.TrimSpace(*p.Status) == "" {
			return Item{}, fmt.Errorf("%w: status must not be empty", ordering.ErrBadRequest)
		}
		st, err := ParseJobStatus(*p.Status)
		if err != nil {
			return Item{}, err
		}
		next.Status = st
	}
	if p.Tags != nil {
		next.Tags = normalizeTags(*p.Tags)
	}

	if !detailsChanged(cur, next) {
		return cur, nil
	}
	next.UpdatedAt = s.now()
	if err := s.gw.UpdateDetails(ctx, next); err != nil {
		return Item{}, err
	}

	s.logger.Debug("Updated job",
		zap.String("id", id),
		zap.String("slug", next.Slug),
		zap.String("status", string(next.Status)))
	return next, nil
}

// UpdateCandidate applies p to candidate id. Name and tag changes are
// written first; a stage change then goes through TransferToGroup.
func (s *Service) UpdateCandidate(ctx context.Context, id string, p CandidatePatch) (out Item, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(KindCandidate, "update", started, err) }()

	cur, err := s.Get(ctx, KindCandidate, id)
	if err != nil {
		return Item{}, err
	}
	next := cur.Clone()

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return Item{}, fmt.Errorf("%w: name is required", ordering.ErrBadRequest)
		}
		next.Name = name
	}
	if p.Tags != nil {
		next.Tags = normalizeTags(*p.Tags)
	}
	dest := cur.Group
	if p.Stage != nil {
		st, err := ParseStage(*p.Stage)
		if err != nil {
			return Item{}, err
		}
		dest = string(st)
	}

	if detailsChanged(cur, next) {
		next.UpdatedAt = s.now()
		if err := s.gw.UpdateDetails(ctx, next); err != nil {
			return Item{}, err
		}
	}
	if dest == cur.Group {
		return next, nil
	}
	return s.TransferToGroup(ctx, KindCandidate, id, dest)
}

func detailsChanged(a, b Item) bool {
	return a.Name != b.Name || a.Title != b.Title || a.Slug != b.Slug ||
		a.Status != b.Status || !slices.Equal(a.Tags, b.Tags)
}
