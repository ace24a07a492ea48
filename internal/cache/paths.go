package cache

import (
	"path"
	"strings"
)

// cleanPath normalizes p to an absolute, slash-separated path with no
// trailing slash (except the root itself).
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func parentPath(p string) string {
	if p == "/" {
		return "/"
	}
	return cleanPath(path.Dir(p))
}

func baseName(p string) string {
	if p == "/" {
		return ""
	}
	return path.Base(p)
}

// depth is the number of path components; "/" has depth 0.
func depth(p string) int {
	p = cleanPath(p)
	if p == "/" {
		return 0
	}
	return strings.Count(p, "/")
}

// isStrictDescendant reports whether candidate is p itself or lives
// under p, matching on whole path components so "/old-sibling" is
// never mistaken for a descendant of "/old".
func isStrictDescendant(candidate, p string) bool {
	candidate, p = cleanPath(candidate), cleanPath(p)
	if candidate == p {
		return true
	}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	return strings.HasPrefix(candidate, prefix)
}

// rewritePrefix replaces the oldPrefix component-prefix of candidate
// with newPrefix. candidate must satisfy isStrictDescendant(candidate,
// oldPrefix).
func rewritePrefix(candidate, oldPrefix, newPrefix string) string {
	candidate, oldPrefix, newPrefix = cleanPath(candidate), cleanPath(oldPrefix), cleanPath(newPrefix)
	if candidate == oldPrefix {
		return newPrefix
	}
	rel := strings.TrimPrefix(candidate, oldPrefix+"/")
	if newPrefix == "/" {
		return "/" + rel
	}
	return newPrefix + "/" + rel
}

// isAncestor reports whether ancestor is a strict ancestor directory
// of p (not equal to p).
func isAncestor(ancestor, p string) bool {
	ancestor, p = cleanPath(ancestor), cleanPath(p)
	if ancestor == p {
		return false
	}
	return isStrictDescendant(p, ancestor)
}

// ancestors returns every strict ancestor of p, from the immediate
// parent up to (and including) the root.
func ancestors(p string) []string {
	p = cleanPath(p)
	var out []string
	for p != "/" {
		p = parentPath(p)
		out = append(out, p)
	}
	return out
}
