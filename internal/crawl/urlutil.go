package crawl

import (
	"net/url"
	"strings"
)

// Normalize canonicalizes a URL for frontier bookkeeping: relative references
// are resolved against base (when given), the fragment is stripped, and a
// single trailing slash is trimmed. The second return is false when the input
// cannot be parsed; callers drop such links rather than treating them as
// fatal.
func Normalize(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	u.RawFragment = ""
	out := u.String()
	out = strings.TrimSuffix(out, "/")
	if out == "" {
		return "", false
	}
	return out, true
}
