package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/hirelane/pkg/pipeline"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     error
		wantErrType interface{}
	}{
		{name: "valid single include", cfg: Config{Includes: []string{"*@acme.io"}}},
		{name: "excludes only", cfg: Config{Excludes: []string{"*-intern"}}},
		{name: "no patterns", cfg: Config{}, wantErr: ErrNoPatterns},
		{name: "invalid include", cfg: Config{Includes: []string{"[invalid"}}, wantErrType: &PatternError{}},
		{name: "invalid exclude", cfg: Config{Includes: []string{"*"}, Excludes: []string{"[invalid"}}, wantErrType: &PatternError{}},
		{name: "blank pattern", cfg: Config{Includes: []string{"  "}}, wantErrType: &PatternError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, m)
			case tt.wantErrType != nil:
				require.Error(t, err)
				assert.IsType(t, tt.wantErrType, err)
				assert.ErrorIs(t, err, ErrInvalidPattern)
				assert.Nil(t, m)
			default:
				require.NoError(t, err)
				assert.NotNil(t, m)
			}
		})
	}
}

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		excludes []string
		key      string
		want     bool
	}{
		{"domain glob", []string{"*@acme.io"}, nil, "ada@acme.io", true},
		{"domain glob miss", []string{"*@acme.io"}, nil, "ada@other.io", false},
		{"case insensitive key", []string{"*@acme.io"}, nil, "Ada@ACME.io", true},
		{"case insensitive pattern", []string{"*@ACME.IO"}, nil, "ada@acme.io", true},
		{"literal", []string{"backend-lead"}, nil, "backend-lead", true},
		{"literal miss", []string{"backend-lead"}, nil, "backend-leads", false},
		{"escaped star is literal", []string{`a\*b`}, nil, "a*b", true},
		{"escaped star does not glob", []string{`a\*b`}, nil, "axxb", false},
		{"brace alternation", []string{"{backend,frontend}-*"}, nil, "frontend-lead", true},
		{"exclude wins", []string{"*"}, []string{"*-intern"}, "backend-intern", false},
		{"exclude only passes others", nil, []string{"*-intern"}, "backend-lead", true},
		{"multiple includes", []string{"ops-*", "*-lead"}, nil, "backend-lead", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(Config{Includes: tt.includes, Excludes: tt.excludes})
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.key))
		})
	}
}

func TestMatcher_MatchItem(t *testing.T) {
	m, err := New(Config{Includes: []string{"*@acme.io", "backend-*"}})
	require.NoError(t, err)

	assert.True(t, m.MatchItem(pipeline.Item{Kind: pipeline.KindCandidate, Email: "ada@acme.io"}))
	assert.True(t, m.MatchItem(pipeline.Item{Kind: pipeline.KindJob, Slug: "backend-lead", Email: "ignored"}))
	assert.False(t, m.MatchItem(pipeline.Item{Kind: pipeline.KindJob, Slug: "ops", Email: "x@acme.io"}))

	var nilMatcher *Matcher
	assert.True(t, nilMatcher.MatchItem(pipeline.Item{}))
}

func TestKey(t *testing.T) {
	c := pipeline.Item{Kind: pipeline.KindCandidate, Email: " Ada@Acme.IO "}
	c.ID = "c1"
	assert.Equal(t, "ada@acme.io", Key(c))

	j := pipeline.Item{Kind: pipeline.KindJob, Slug: "backend-lead"}
	assert.Equal(t, "backend-lead", Key(j))

	bare := pipeline.Item{Kind: pipeline.KindCandidate}
	bare.ID = "C9"
	assert.Equal(t, "c9", Key(bare))
}

func TestIsGlobPattern(t *testing.T) {
	assert.True(t, IsGlobPattern("*@x.io"))
	assert.True(t, IsGlobPattern("a?c"))
	assert.True(t, IsGlobPattern("{a,b}"))
	assert.True(t, IsGlobPattern("[ab]"))
	assert.False(t, IsGlobPattern(`a\*b`))
	assert.False(t, IsGlobPattern("plain"))
	assert.Equal(t, "a*b", unescape(`a\*b`))
}

func TestMatcher_Patterns(t *testing.T) {
	m, err := New(Config{Includes: []string{" A* "}, Excludes: []string{"B"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a*"}, m.IncludePatterns())
	assert.Equal(t, []string{"b"}, m.ExcludePatterns())
}

func TestPatternError(t *testing.T) {
	err := &PatternError{Pattern: "[x", Err: ErrInvalidPattern}
	assert.Equal(t, "pattern [x: invalid glob pattern", err.Error())
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func BenchmarkMatcher_Match(b *testing.B) {
	m, _ := New(Config{Includes: []string{"*@acme.io"}, Excludes: []string{"test-*"}})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Match("ada@acme.io")
	}
}
