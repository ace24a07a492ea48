package cache

import (
	"path"
	"strings"
)

// excludeMatcher tests paths against a configured set of glob
// patterns. Matching paths are "local only": the reconciler drops
// their pending changes without ever syncing them, but they remain
// fully visible through the cache.
type excludeMatcher struct {
	patterns []string
}

func newExcludeMatcher(patterns []string) *excludeMatcher {
	return &excludeMatcher{patterns: patterns}
}

// Match reports whether p matches any configured pattern. A pattern
// ending in "/**" matches the directory itself and everything under
// it; other patterns are matched with path.Match against the full
// cleaned path and against its base name.
func (m *excludeMatcher) Match(p string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	p = cleanPath(p)
	for _, pat := range m.patterns {
		if strings.HasSuffix(pat, "/**") {
			prefix := strings.TrimSuffix(pat, "/**")
			if prefix == "" {
				prefix = "/"
			}
			if isStrictDescendant(p, prefix) {
				return true
			}
			continue
		}
		if ok, err := path.Match(pat, p); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pat, baseName(p)); err == nil && ok {
			return true
		}
	}
	return false
}
