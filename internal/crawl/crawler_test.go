package crawl

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.calls = append(f.calls, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return "", err
	}
	html, ok := f.pages[rawURL]
	if !ok {
		return "", &FetchError{URL: rawURL, Kind: FetchErrHTTPStatus, StatusCode: 404}
	}
	return html, nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("%x", data), nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func pageHTML(body string, links ...string) string {
	out := "<html><head><title>T</title></head><body><p>" + body + "</p>"
	for _, l := range links {
		out += fmt.Sprintf(`<a href=%q>link</a>`, l)
	}
	return out + "</body></html>"
}

func filler(n int) string {
	out := ""
	for len(out) < n {
		out += "lorem ipsum dolor sit amet "
	}
	return out
}

func newTestCrawler(budget Budget, fetcher PageFetcher, opts ...Option) *Crawler {
	return New(budget, fetcher, fakeHasher{}, fakeClock{now: time.Unix(1700000000, 0)}, zap.NewNop(), opts...)
}

func TestCrawler_BreadthFirstOrder(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML(filler(200), "/c", "/d"),
		"https://example.com/b": pageHTML(filler(200), "/e"),
		"https://example.com/c": pageHTML(filler(200)),
		"https://example.com/d": pageHTML(filler(200)),
		"https://example.com/e": pageHTML(filler(200)),
	}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  10,
		MaxDepth:  2,
	}, fetcher)

	pages := c.Run(context.Background(), []string{"https://example.com/a", "https://example.com/b"})

	var urls []string
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	require.Equal(t, []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
		"https://example.com/d",
		"https://example.com/e",
	}, urls)
	require.Equal(t, 5, c.PagesFetched())
	require.Empty(t, c.Errors())
}

func TestCrawler_MaxPagesBudget(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/a": pageHTML(filler(200), "/b", "/c", "/d"),
		"https://example.com/b": pageHTML(filler(200)),
		"https://example.com/c": pageHTML(filler(200)),
		"https://example.com/d": pageHTML(filler(200)),
	}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  2,
		MaxDepth:  3,
	}, fetcher)

	pages := c.Run(context.Background(), []string{"https://example.com/a"})
	require.Len(t, pages, 2)
	require.Equal(t, 2, c.PagesFetched())
	require.Len(t, fetcher.calls, 2)
}

func TestCrawler_MaxDepthZeroNeverExpands(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com": pageHTML(filler(200), "/b", "/c"),
	}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  5,
		MaxDepth:  0,
	}, fetcher)

	pages := c.Run(context.Background(), []string{"https://example.com"})
	require.Len(t, pages, 1)
	require.Equal(t, []string{"https://example.com"}, fetcher.calls)
}

func TestCrawler_FailedFetchNotRetried(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		pages: map[string]string{
			"https://example.com/a": pageHTML(filler(200), "/bad"),
			"https://example.com/b": pageHTML(filler(200), "/bad"),
		},
		errs: map[string]error{
			"https://example.com/bad": &FetchError{URL: "https://example.com/bad", Kind: FetchErrHTTPStatus, StatusCode: 500},
		},
	}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  10,
		MaxDepth:  2,
	}, fetcher)

	c.Run(context.Background(), []string{"https://example.com/a", "https://example.com/b"})

	badCalls := 0
	for _, u := range fetcher.calls {
		if u == "https://example.com/bad" {
			badCalls++
		}
	}
	require.Equal(t, 1, badCalls)
	require.Equal(t, []string{"HTTP 500 fetching https://example.com/bad"}, c.Errors())
}

func TestCrawler_ThinPageDiscardedButCountsFetched(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com": pageHTML("tiny"),
	}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  5,
		MaxDepth:  0,
	}, fetcher)

	pages := c.Run(context.Background(), []string{"https://example.com"})
	require.Empty(t, pages)
	require.Equal(t, 1, c.PagesFetched())
	require.Empty(t, c.Errors())
}

func TestCrawler_DisallowedSeedYieldsNothing(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  5,
		MaxDepth:  1,
	}, fetcher)

	pages := c.Run(context.Background(), []string{"https://outside.net"})
	require.Empty(t, pages)
	require.Zero(t, c.PagesFetched())
	require.Empty(t, fetcher.calls)
	require.Empty(t, c.Errors())
}

func TestCrawler_CanceledContextRecordsStop(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com": pageHTML(filler(200)),
	}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  5,
		MaxDepth:  0,
	}, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages := c.Run(ctx, []string{"https://example.com"})
	require.Empty(t, pages)
	require.Len(t, c.Errors(), 1)
	require.Contains(t, c.Errors()[0], "crawl canceled")
}

func TestCrawler_TimeoutRecordsJobTimeoutMessage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com": pageHTML(filler(200)),
	}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  5,
		MaxDepth:  0,
	}, fetcher)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	c.Run(ctx, []string{"https://example.com"})
	require.Equal(t, []string{"job timeout exceeded; crawl stopped early"}, c.Errors())
}

func TestCrawler_ArchivesAcceptedPages(t *testing.T) {
	t.Parallel()

	store := &fakeBlobStore{objects: map[string][]byte{}}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com": pageHTML(filler(200)),
	}}
	c := newTestCrawler(Budget{
		Allowlist: NewAllowlist([]string{"example.com"}),
		MaxPages:  1,
		MaxDepth:  0,
	}, fetcher, WithArchive(store, "job-1"))

	pages := c.Run(context.Background(), []string{"https://example.com"})
	require.Len(t, pages, 1)
	require.Len(t, store.objects, 1)
	for path := range store.objects {
		require.Contains(t, path, "job-1/")
	}
}

type fakeBlobStore struct {
	objects map[string][]byte
}

func (f *fakeBlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	f.objects[path] = data
	return "mem://" + path, nil
}
