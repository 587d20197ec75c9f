// Package match selects board items by glob patterns over their natural
// keys (job slugs, candidate emails) and by attribute filters.
package match

import (
	"strings"

	"github.com/3leaps/hirelane/pkg/pipeline"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// NormalizeKey lowercases and trims a key. Emails and slugs compare
// case-insensitively.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// NormalizePattern converts a user-provided glob pattern to canonical form.
// Escape sequences survive because lowercasing never touches them.
func NormalizePattern(pattern string) string {
	return strings.ToLower(strings.TrimSpace(pattern))
}

// Key returns the key an item is matched by: the slug for jobs, the email
// for candidates. Items without one fall back to their id.
func Key(it pipeline.Item) string {
	k := it.Email
	if it.Kind == pipeline.KindJob {
		k = it.Slug
	}
	if strings.TrimSpace(k) == "" {
		k = it.ID
	}
	return NormalizeKey(k)
}

// IsGlobPattern reports whether pattern contains an unescaped glob
// metacharacter.
//
//	"*@example.com"  → true
//	"ada\*@x.io"     → false (escaped asterisk is literal)
//	"backend-lead"   → false
func IsGlobPattern(pattern string) bool {
	return firstUnescapedMeta(pattern) != -1
}

func firstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			if strings.IndexByte(globEscapable, pattern[i+1]) >= 0 {
				i++
			}
			continue
		}
		if c == '*' || c == '?' || c == '[' || c == '{' {
			return i
		}
	}
	return -1
}

// unescape drops the backslash from escaped metacharacters so a literal
// pattern can be compared to a key directly.
func unescape(pattern string) string {
	if !strings.ContainsRune(pattern, '\\') {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' && i+1 < len(pattern) && strings.IndexByte(globEscapable, pattern[i+1]) >= 0 {
			i++
		}
		b.WriteByte(pattern[i])
	}
	return b.String()
}
