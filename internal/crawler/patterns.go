package crawler

import (
	"net/url"
	"path"
	"strings"
)

// linkFilter applies the ignore and follow glob patterns to link paths.
//
// Rules:
//  1. A path matching any ignore pattern is not followed.
//  2. When follow patterns are set, a path must match at least one of them.
//  3. Otherwise the link is followed.
type linkFilter struct {
	ignore []string
	follow []string
}

func (f linkFilter) allows(u *url.URL) bool {
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.ignore {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(f.follow) == 0 {
		return true
	}
	for _, pattern := range f.follow {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a URL path matches a glob pattern.
//   - "/gallery/*" matches "/gallery" and everything below it
//   - "*.pdf" matches any path ending in ".pdf"
//   - other patterns use path.Match; patterns without "/" are also tried
//     against the last path segment
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, "*?[") {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	if strings.ContainsAny(pattern, "*?[") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
