// Package crawl implements the bounded, domain-scoped BFS crawler.
package crawl

import (
	"net/url"
	"strings"
)

// Allowlist is the set of domains a crawl may fetch from. Entries are
// suffix-matched against request hosts, so "wikipedia.org" admits
// "en.wikipedia.org" but not "evilwikipedia.org". A leading "www." is
// ignored on both sides.
type Allowlist []string

// NewAllowlist normalizes raw allow-list entries (lowercase, trimmed,
// "www." stripped). Empty entries are dropped.
func NewAllowlist(entries []string) Allowlist {
	out := make(Allowlist, 0, len(entries))
	for _, raw := range entries {
		entry := stripWWW(strings.TrimSpace(strings.ToLower(raw)))
		if entry == "" {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Allows reports whether the URL's host is covered by the allow-list.
// Malformed URLs fail closed.
func (a Allowlist) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	return a.AllowsHost(u.Hostname())
}

// AllowsHost matches a bare host against the allow-list.
func (a Allowlist) AllowsHost(host string) bool {
	host = stripWWW(strings.ToLower(host))
	if host == "" {
		return false
	}
	for _, entry := range a {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
