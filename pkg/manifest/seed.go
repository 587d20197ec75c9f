package manifest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Plan is the ordered list of creates a manifest expands to. Jobs are
// created before candidates; within each kind, listed records precede
// generated ones.
type Plan struct {
	Jobs       []pipeline.NewJob
	Candidates []pipeline.NewCandidate
}

// Len returns the number of creates in the plan.
func (p Plan) Len() int {
	return len(p.Jobs) + len(p.Candidates)
}

var (
	firstNames = []string{"Alex", "Taylor", "Jordan", "Casey", "Morgan", "Sam", "Riley", "Jamie", "Avery", "Quinn"}
	lastNames  = []string{"Lee", "Patel", "Garcia", "Nguyen", "Kim", "Lopez", "Brown", "Khan", "Singh", "Chen"}
	seedTags   = []string{"remote", "hybrid", "junior", "senior", "contract", "full-time"}
	roles      = []string{
		"Frontend Engineer", "Backend Engineer", "Fullstack Developer", "Data Engineer", "ML Engineer",
		"QA Engineer", "DevOps Engineer", "Android Engineer", "iOS Engineer", "Product Designer",
	}
)

// Plan expands m into concrete creates. now anchors generated application
// dates. Generation is deterministic for a given seed and now.
func (m *Manifest) Plan(now time.Time) (Plan, error) {
	var p Plan
	for _, j := range m.Jobs {
		p.Jobs = append(p.Jobs, j.NewJob())
	}
	for i, c := range m.Candidates {
		in, err := c.NewCandidate()
		if err != nil {
			return Plan{}, fmt.Errorf("candidates[%d]: %w", i, err)
		}
		p.Candidates = append(p.Candidates, in)
	}

	g := m.Generate
	if g == nil {
		return p, nil
	}
	seed := g.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	maxAge := g.MaxAgeDays
	if maxAge <= 0 {
		maxAge = DefaultMaxAgeDays
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	for i := range g.Jobs {
		title := fmt.Sprintf("%s %d", roles[i%len(roles)], i+1)
		job := pipeline.NewJob{
			Title:  title,
			Slug:   pipeline.Slugify(fmt.Sprintf("%s-%d", title, i+1)),
			Status: string(pipeline.JobStatusOpen),
			Tags:   []string{"hybrid", "full-time"},
		}
		if i%len(roles) == 3 {
			job.Status = string(pipeline.JobStatusClosed)
		}
		if i%2 == 1 {
			job.Tags = []string{"remote"}
		}
		p.Jobs = append(p.Jobs, job)
	}

	window := time.Duration(maxAge) * 24 * time.Hour
	for i := 1; i <= g.Candidates; i++ {
		name := firstNames[i%len(firstNames)] + " " + lastNames[i%len(lastNames)]
		applied := now.Add(-time.Duration(rng.Int64N(int64(window)))).UTC().Truncate(time.Second)
		p.Candidates = append(p.Candidates, pipeline.NewCandidate{
			Name:      name,
			Email:     emailFor(name, i),
			Stage:     string(pipeline.Stages[rng.IntN(len(pipeline.Stages))]),
			Tags:      []string{seedTags[rng.IntN(len(seedTags))]},
			AppliedAt: &applied,
		})
	}
	return p, nil
}

func emailFor(name string, i int) string {
	local := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return '.'
	}, strings.ToLower(name))
	return fmt.Sprintf("%s%d@example.com", local, i)
}

// Creator is the write side Apply needs. *pipeline.Service and
// *boardclient.Client both satisfy it.
type Creator interface {
	CreateCandidate(ctx context.Context, in pipeline.NewCandidate) (pipeline.Item, error)
	CreateJob(ctx context.Context, in pipeline.NewJob) (pipeline.Item, error)
}

// ApplyOptions tunes Apply.
type ApplyOptions struct {
	// SkipExisting treats duplicate-slug conflicts as skipped rather than
	// fatal.
	SkipExisting bool

	// OnCreate, when set, receives every created item.
	OnCreate func(pipeline.Item)

	Logger *zap.Logger
}

// Result summarizes an Apply run.
type Result struct {
	Jobs       int `json:"jobs"`
	Candidates int `json:"candidates"`
	Skipped    int `json:"skipped"`
}

// Apply creates every record in p through c, stopping at the first error.
// The partial Result is returned alongside the error.
func Apply(ctx context.Context, c Creator, p Plan, opts ApplyOptions) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var res Result

	for i, in := range p.Jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		it, err := c.CreateJob(ctx, in)
		if err != nil {
			if opts.SkipExisting && errors.Is(err, pipeline.ErrConflict) {
				res.Skipped++
				logger.Debug("Skipping existing job", zap.String("title", in.Title))
				continue
			}
			return res, fmt.Errorf("jobs[%d] %q: %w", i, in.Title, err)
		}
		res.Jobs++
		if opts.OnCreate != nil {
			opts.OnCreate(it)
		}
	}

	for i, in := range p.Candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		it, err := c.CreateCandidate(ctx, in)
		if err != nil {
			return res, fmt.Errorf("candidates[%d] %q: %w", i, in.Email, err)
		}
		res.Candidates++
		if opts.OnCreate != nil {
			opts.OnCreate(it)
		}
	}

	logger.Info("Seed applied",
		zap.Int("jobs", res.Jobs),
		zap.Int("candidates", res.Candidates),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
