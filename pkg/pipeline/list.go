package pipeline

import (
	"context"
)

// Paging limits.
const (
	DefaultJobPageSize       = 10
	DefaultCandidatePageSize = 50
	MaxPageSize              = 500
)

// Page is one window of a listing. Total counts every item that passed
// the filters, not just those in Data.
type Page struct {
	Data  []Item `json:"data"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// Counts is the number of stored items per kind.
type Counts struct {
	Jobs       int `json:"jobs"`
	Candidates int `json:"candidates"`
}

// Groups returns the group keys of kind in board order.
func Groups(kind Kind) []string {
	if kind == KindJob {
		return []string{GlobalGroup}
	}
	out := make([]string, len(Stages))
	for i, st := range Stages {
		out[i] = string(st)
	}
	return out
}

// DefaultPageSize is the page size used when a listing gives none.
func DefaultPageSize(kind Kind) int {
	if kind == KindJob {
		return DefaultJobPageSize
	}
	return DefaultCandidatePageSize
}

// ListAll returns every item of kind, group by group in board order.
func (s *Service) ListAll(ctx context.Context, kind Kind) ([]Item, error) {
	var out []Item
	for _, g := range Groups(kind) {
		items, err := s.ListGroup(ctx, kind, g)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// Counts returns the number of jobs and candidates.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	jobs, err := s.gw.Count(ctx, KindJob)
	if err != nil {
		return Counts{}, err
	}
	candidates, err := s.gw.Count(ctx, KindCandidate)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Jobs: jobs, Candidates: candidates}, nil
}

// Paginate returns the 1-based page of items holding limit entries. A page
// below 1 is treated as 1; a limit below 1 falls back to the kind default
// and is capped at MaxPageSize.
func Paginate(kind Kind, items []Item, page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize(kind)
	}
	limit = min(limit, MaxPageSize)

	p := Page{Data: []Item{}, Total: len(items), Page: page, Limit: limit}
	if page-1 >= (len(items)+limit-1)/limit {
		return p
	}
	start := (page - 1) * limit
	p.Data = items[start:min(start+limit, len(items))]
	return p
}
