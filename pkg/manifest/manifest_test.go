package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validManifestYAML returns a minimal valid manifest in YAML format.
func validManifestYAML() string {
	return `version: "1.0"
jobs:
  - title: Backend Engineer
`
}

// validManifestJSON returns a minimal valid manifest in JSON format.
func validManifestJSON() string {
	return `{
  "version": "1.0",
  "jobs": [{"title": "Backend Engineer"}]
}`
}

// fullManifestYAML returns a manifest using every field.
func fullManifestYAML() string {
	return `$schema: https://schemas.3leaps.dev/hirelane/v1.0.0/seed-manifest.schema.json
version: "1.0"
jobs:
  - title: Backend Engineer
    slug: backend-eng
    status: closed
    tags: [remote]
candidates:
  - name: Ada Lovelace
    email: ada@example.com
    stage: screen
    tags: [senior]
    applied_at: 2024-05-01
  - name: Grace Hopper
    email: grace@example.com
    applied_at: "2024-05-02T10:30:00Z"
generate:
  candidates: 25
  jobs: 3
  seed: 7
  max_age_days: 30
`
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		filename    string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, m *Manifest)
	}{
		{
			name:     "valid YAML manifest",
			content:  validManifestYAML(),
			filename: "seed.yaml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "1.0", m.Version)
				require.Len(t, m.Jobs, 1)
				assert.Equal(t, "Backend Engineer", m.Jobs[0].Title)
				assert.Nil(t, m.Generate)
				assert.Equal(t, 1, m.Total())
			},
		},
		{
			name:     "valid JSON manifest",
			content:  validManifestJSON(),
			filename: "seed.json",
			validate: func(t *testing.T, m *Manifest) {
				require.Len(t, m.Jobs, 1)
			},
		},
		{
			name:     "full manifest",
			content:  fullManifestYAML(),
			filename: "full.yml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Contains(t, m.Schema, "seed-manifest")
				assert.Equal(t, "backend-eng", m.Jobs[0].Slug)
				assert.Equal(t, "closed", m.Jobs[0].Status)
				require.Len(t, m.Candidates, 2)
				assert.Equal(t, "screening", m.Candidates[0].Stage, "legacy stage normalized")
				assert.Equal(t, "2024-05-01", m.Candidates[0].AppliedAt)
				require.NotNil(t, m.Generate)
				assert.Equal(t, 25, m.Generate.Candidates)
				assert.Equal(t, uint64(7), m.Generate.Seed)
				assert.Equal(t, 30, m.Generate.MaxAgeDays)
				assert.Equal(t, 31, m.Total())
			},
		},
		{
			name:     "generate defaults applied",
			content:  "version: \"1.0\"\ngenerate:\n  candidates: 5\n",
			filename: "gen.yaml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, DefaultSeed, m.Generate.Seed)
				assert.Equal(t, DefaultMaxAgeDays, m.Generate.MaxAgeDays)
			},
		},
		{
			name:     "missing version",
			content:  "jobs:\n  - title: X\n",
			filename: "seed.yaml",
			wantErr:  true,
		},
		{
			name:     "unknown top-level field",
			content:  "version: \"1.0\"\nbucket: nope\n",
			filename: "seed.yaml",
			wantErr:  true,
		},
		{
			name:     "unknown candidate field",
			content:  "version: \"1.0\"\ncandidates:\n  - name: A\n    email: a@x.io\n    phone: \"1\"\n",
			filename: "seed.yaml",
			wantErr:  true,
		},
		{
			name:     "candidate without email",
			content:  "version: \"1.0\"\ncandidates:\n  - name: A\n",
			filename: "seed.yaml",
			wantErr:  true,
		},
		{
			name:     "bad stage",
			content:  "version: \"1.0\"\ncandidates:\n  - name: A\n    email: a@x.io\n    stage: limbo\n",
			filename: "seed.yaml",
			wantErr:  true,
		},
		{
			name:     "bad job status",
			content:  "version: \"1.0\"\njobs:\n  - title: A\n    status: draft\n",
			filename: "seed.yaml",
			wantErr:  true,
		},
		{
			name:     "negative generate count",
			content:  "version: \"1.0\"\ngenerate:\n  jobs: -1\n",
			filename: "seed.yaml",
			wantErr:  true,
		},
		{
			name:        "invalid YAML",
			content:     "version: [\n",
			filename:    "seed.yaml",
			wantErr:     true,
			errContains: "invalid YAML",
		},
		{
			name:        "invalid JSON",
			content:     "{",
			filename:    "seed.json",
			wantErr:     true,
			errContains: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			m, err := Load(path)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, m)
			}
		})
	}
}

func TestLoad_SeedRules(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		paths []string
	}{
		{
			name:  "derived slugs collide",
			doc:   "version: \"1.0\"\njobs:\n  - title: Backend Lead\n  - title: backend  lead!\n",
			paths: []string{"/jobs/1"},
		},
		{
			name:  "given slug collides with derived",
			doc:   "version: \"1.0\"\njobs:\n  - title: Ops\n  - title: Platform\n    slug: ops\n",
			paths: []string{"/jobs/1"},
		},
		{
			name:  "title without a slug",
			doc:   "version: \"1.0\"\njobs:\n  - title: \"!!!\"\n",
			paths: []string{"/jobs/0/title"},
		},
		{
			name:  "emails collide case folded",
			doc:   "version: \"1.0\"\ncandidates:\n  - name: A\n    email: ada@acme.io\n  - name: B\n    email: bo@acme.io\n  - name: C\n    email: ADA@acme.io\n",
			paths: []string{"/candidates/2/email"},
		},
		{
			name:  "bad date",
			doc:   "version: \"1.0\"\ncandidates:\n  - name: A\n    email: a@x.io\n    applied_at: sometime in May\n",
			paths: []string{"/candidates/0/applied_at"},
		},
		{
			name:  "every problem reported",
			doc:   "version: \"1.0\"\njobs:\n  - title: Ops\n  - title: ops\ncandidates:\n  - name: A\n    email: a@x.io\n  - name: B\n    email: a@x.io\n",
			paths: []string{"/jobs/1", "/candidates/1/email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.doc), "seed.yaml")
			require.ErrorIs(t, err, ErrValidationFailed)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			var paths []string
			for _, v := range verrs {
				paths = append(paths, v.Path)
			}
			assert.Equal(t, tt.paths, paths)
		})
	}

	t.Run("distinct records pass", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(fullManifestYAML()), "seed.yaml")
		require.NoError(t, err)
		assert.NoError(t, m.Check())
	})
}

func TestLoad_SchemaErrorsAreValidationErrors(t *testing.T) {
	_, err := LoadFromBytes([]byte("version: \"2.0\"\n"), "seed.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.NotEmpty(t, verrs)
}

func TestLoad_FileErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := Load("/nonexistent/path/seed.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := LoadFromBytes(nil, "seed.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})
}

func TestLoadFromBytes(t *testing.T) {
	t.Run("auto-detect YAML", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestYAML()), "")
		require.NoError(t, err)
		assert.Len(t, m.Jobs, 1)
	})

	t.Run("auto-detect JSON", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestJSON()), "")
		require.NoError(t, err)
		assert.Len(t, m.Jobs, 1)
	})

	t.Run("unknown extension tries both", func(t *testing.T) {
		m, err := LoadFromBytes([]byte(validManifestYAML()), "seed.txt")
		require.NoError(t, err)
		assert.Len(t, m.Jobs, 1)
	})
}

func TestLoadFromReader(t *testing.T) {
	m, err := LoadFromReader(strings.NewReader(validManifestYAML()), "seed.yaml")
	require.NoError(t, err)
	assert.Len(t, m.Jobs, 1)
}

func TestDefault(t *testing.T) {
	m := Default()
	require.NoError(t, Validate(m))
	assert.Equal(t, 1010, m.Total())
	assert.Equal(t, DefaultSeed, m.Generate.Seed)
}

func TestCandidateSeed_NewCandidate(t *testing.T) {
	in, err := CandidateSeed{Name: "A", Email: "a@x.io", AppliedAt: "2024-05-01"}.NewCandidate()
	require.NoError(t, err)
	require.NotNil(t, in.AppliedAt)
	assert.True(t, in.AppliedAt.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

	in, err = CandidateSeed{Name: "A", Email: "a@x.io"}.NewCandidate()
	require.NoError(t, err)
	assert.Nil(t, in.AppliedAt)

	_, err = CandidateSeed{Name: "A", Email: "a@x.io", AppliedAt: "May 1"}.NewCandidate()
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/version", Message: "required"}}
		assert.Contains(t, errs.Error(), "/version")
		assert.Contains(t, errs.Error(), "required")
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Path: "/version", Message: "required"},
			{Path: "/jobs/0/title", Message: "must not be empty"},
		}
		errStr := errs.Error()
		assert.Contains(t, errStr, "2 errors")
		assert.Contains(t, errStr, "/jobs/0/title")
	})

	t.Run("empty path", func(t *testing.T) {
		errs := ValidationErrors{{Path: "", Message: "root error"}}
		assert.Equal(t, "root error", errs.Error())
	})

	t.Run("unwrap returns ErrValidationFailed", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/x", Message: "bad"}}
		assert.True(t, errors.Is(errs, ErrValidationFailed))
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid manifest passes", func(t *testing.T) {
		m := &Manifest{Version: "1.0", Jobs: []JobSeed{{Title: "Ops"}}}
		assert.NoError(t, Validate(m))
	})

	t.Run("duplicate slug fails without touching the input", func(t *testing.T) {
		m := &Manifest{
			Version:    "1.0",
			Jobs:       []JobSeed{{Title: "Ops"}, {Title: "Infra", Slug: "ops"}},
			Candidates: []CandidateSeed{{Name: "A", Email: "a@x.io", Stage: "screen"}},
		}
		err := Validate(m)
		require.ErrorIs(t, err, ErrValidationFailed)
		assert.Contains(t, err.Error(), `slug "ops" is already used by /jobs/0`)
		assert.Equal(t, "screen", m.Candidates[0].Stage)
	})

	t.Run("invalid manifest fails", func(t *testing.T) {
		m := &Manifest{Version: "1.0", Jobs: []JobSeed{{Title: "Ops", Status: "draft"}}}
		err := Validate(m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidationFailed))
	})
}

func TestValidate_EmbeddedSchema(t *testing.T) {
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(originalDir) })

	assert.NoError(t, Validate(&Manifest{Version: "1.0"}))
	assert.ErrorIs(t, Validate(&Manifest{Version: "9"}), ErrValidationFailed)
}
