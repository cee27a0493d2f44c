package crawl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/docs/intro")
	require.NoError(t, err)

	cases := []struct {
		name string
		raw  string
		base *url.URL
		want string
		ok   bool
	}{
		{"absolute unchanged", "https://example.com/a", nil, "https://example.com/a", true},
		{"trailing slash trimmed", "https://example.com/a/", nil, "https://example.com/a", true},
		{"fragment stripped", "https://example.com/a#section", nil, "https://example.com/a", true},
		{"relative resolved", "../about", base, "https://example.com/about", true},
		{"same-page fragment", "#top", base, "https://example.com/docs/intro", true},
		{"whitespace trimmed", "  https://example.com/a  ", nil, "https://example.com/a", true},
		{"empty", "", nil, "", false},
		{"unparseable", "http://[::1]:bad", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Normalize(tc.raw, tc.base)
			require.Equal(t, tc.ok, ok)
			if ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}
