// Package sources tracks which web sources were retrieved and cited during
// a research job, and provides the URL and citation-marker helpers used to
// keep a master report's citations honest.
package sources

import (
	"net/url"
	"strings"
)

// NormalizeURL reduces a URL to a loose identity key: scheme, host and path
// are lower-cased, a trailing slash is dropped and the query and fragment
// are removed. It is only fit for merging duplicate citations; pages that
// differ by query string collapse to one key. Unparseable input falls back
// to a trimmed lower-case string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// CanonicalURL is the exact identity of a retrieved page: scheme and host
// are lower-cased and the fragment and a single trailing slash on the path
// are dropped. Path case and the query string are preserved, so
// https://a.example/Story?id=1 and https://a.example/story?id=2 stay
// distinct. Unparseable input is only trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	out := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimSuffix(u.EscapedPath(), "/")
	if u.RawQuery != "" || u.ForceQuery {
		out += "?" + u.RawQuery
	}
	return out
}

// Set is a set of canonical URLs.
type Set map[string]struct{}

// NewSet builds a Set from raw URLs.
func NewSet(urls ...string) Set {
	s := make(Set, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add inserts the canonical form of raw.
func (s Set) Add(raw string) { s[CanonicalURL(raw)] = struct{}{} }

// Has reports whether raw's canonical form is present.
func (s Set) Has(raw string) bool {
	_, ok := s[CanonicalURL(raw)]
	return ok
}
