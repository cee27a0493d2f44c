package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/askmysite/askmysite/internal/metrics"
	"github.com/askmysite/askmysite/internal/rag"
)

// MinContentLength is the quality floor for accepting a page. Pages whose
// cleaned text is shorter are discarded, never stored.
const MinContentLength = 100

// Budget is the immutable per-crawl configuration. Once a crawl starts the
// budget is read-only; the crawler self-terminates when the page budget is
// spent or the frontier empties.
type Budget struct {
	Allowlist Allowlist
	MaxPages  int
	MaxDepth  int
}

type frontierEntry struct {
	url   string
	depth int
}

// Crawler walks pages breadth-first within one job's budget. A Crawler is
// owned by a single ingest job and must not be shared or reused.
type Crawler struct {
	budget  Budget
	fetcher PageFetcher
	hasher  rag.Hasher
	clock   rag.Clock
	logger  *zap.Logger

	archive      rag.BlobStore
	archiveJob   string
	minContent   int
	frontier     []frontierEntry
	visited      map[string]struct{}
	queued       map[string]struct{}
	fetched      int
	errs         []string
	stoppedEarly bool
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithArchive makes the crawler write each accepted page's raw HTML to the
// blob store under <jobID>/<pageID>.html.
func WithArchive(store rag.BlobStore, jobID string) Option {
	return func(c *Crawler) {
		c.archive = store
		c.archiveJob = jobID
	}
}

// WithMinContentLength overrides the quality floor (tests only).
func WithMinContentLength(n int) Option {
	return func(c *Crawler) { c.minContent = n }
}

// New builds a Crawler for one job.
func New(budget Budget, fetcher PageFetcher, hasher rag.Hasher, clock rag.Clock, logger *zap.Logger, opts ...Option) *Crawler {
	c := &Crawler{
		budget:     budget,
		fetcher:    fetcher,
		hasher:     hasher,
		clock:      clock,
		logger:     logger,
		minContent: MinContentLength,
		visited:    make(map[string]struct{}),
		queued:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run crawls from the seed URLs and returns the accepted pages in strict
// breadth-first order. Fetch failures are accumulated (see Errors) and never
// abort the crawl. Context expiry stops the crawl at the next frontier pop;
// pages already fetched are kept.
func (c *Crawler) Run(ctx context.Context, seedURLs []string) []rag.PageRecord {
	for _, seed := range seedURLs {
		normalized, ok := Normalize(seed, nil)
		if !ok {
			c.logger.Warn("dropping unparseable seed URL", zap.String("url", seed))
			continue
		}
		c.enqueue(normalized, 0)
	}

	var pages []rag.PageRecord
	for len(c.frontier) > 0 && c.fetched < c.budget.MaxPages {
		if err := ctx.Err(); err != nil {
			c.recordStop(err)
			break
		}

		entry := c.frontier[0]
		c.frontier = c.frontier[1:]

		if entry.depth > c.budget.MaxDepth {
			continue
		}
		if _, seen := c.visited[entry.url]; seen {
			continue
		}
		if !c.budget.Allowlist.Allows(entry.url) {
			c.logger.Debug("skipping disallowed URL", zap.String("url", entry.url))
			continue
		}

		html, ok := c.fetchOnce(ctx, entry.url)
		if !ok {
			continue
		}

		page, accepted := c.buildPage(ctx, entry.url, html)
		if accepted {
			pages = append(pages, page)
		}

		if entry.depth < c.budget.MaxDepth && c.fetched < c.budget.MaxPages {
			c.expand(entry, html)
		}
	}
	return pages
}

// fetchOnce performs the visited/budget-guarded network attempt for a URL.
// The URL is marked visited before the outcome is known, so each URL triggers
// at most one network attempt for the lifetime of the crawl.
func (c *Crawler) fetchOnce(ctx context.Context, rawURL string) (string, bool) {
	if c.fetched >= c.budget.MaxPages {
		return "", false
	}
	if _, seen := c.visited[rawURL]; seen {
		return "", false
	}
	c.visited[rawURL] = struct{}{}

	html, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		c.recordFetchError(rawURL, err)
		return "", false
	}
	c.fetched++
	metrics.ObservePage(rawURL, "fetched")
	return html, true
}

// buildPage cleans the HTML and applies the minimum-content quality filter.
// A too-short page is a deliberate skip, not an error.
func (c *Crawler) buildPage(ctx context.Context, rawURL, html string) (rag.PageRecord, bool) {
	text, title, err := Clean(html)
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("unexpected error processing %s: %v", rawURL, err))
		return rag.PageRecord{}, false
	}
	if len(text) < c.minContent {
		c.logger.Debug("discarding thin page",
			zap.String("url", rawURL),
			zap.Int("content_length", len(text)),
		)
		metrics.ObservePage(rawURL, "discarded")
		return rag.PageRecord{}, false
	}

	id, err := c.hasher.Hash([]byte(rawURL))
	if err != nil {
		c.errs = append(c.errs, fmt.Sprintf("unexpected error processing %s: %v", rawURL, err))
		return rag.PageRecord{}, false
	}

	if c.archive != nil {
		path := fmt.Sprintf("%s/%s.html", c.archiveJob, id)
		if _, err := c.archive.PutObject(ctx, path, "text/html; charset=utf-8", []byte(html)); err != nil {
			c.errs = append(c.errs, fmt.Sprintf("archive failed for %s: %v", rawURL, err))
		}
	}

	return rag.PageRecord{
		ID:        id,
		URL:       rawURL,
		Title:     title,
		Content:   text,
		FetchedAt: c.clock.Now(),
	}, true
}

// expand pushes a page's outbound links onto the back of the frontier, which
// preserves breadth-first order: all depth-d entries precede any depth-d+1
// entry.
func (c *Crawler) expand(entry frontierEntry, html string) {
	base, err := url.Parse(entry.url)
	if err != nil {
		return
	}
	for _, link := range ExtractLinks(html, base, c.budget.Allowlist) {
		if _, seen := c.visited[link]; seen {
			continue
		}
		c.enqueue(link, entry.depth+1)
	}
}

func (c *Crawler) enqueue(rawURL string, depth int) {
	if _, queued := c.queued[rawURL]; queued {
		return
	}
	c.queued[rawURL] = struct{}{}
	c.frontier = append(c.frontier, frontierEntry{url: rawURL, depth: depth})
}

func (c *Crawler) recordFetchError(rawURL string, err error) {
	c.errs = append(c.errs, err.Error())

	var fe *FetchError
	if errors.As(err, &fe) {
		metrics.ObserveFetchError(fetchErrorClass(fe.Kind))
		if fe.Kind == FetchErrHTTPStatus && fe.StatusCode == 403 {
			// Server-side rejection, not a crawler defect.
			c.logger.Warn("fetch forbidden", zap.String("url", rawURL), zap.Int("status", fe.StatusCode))
			return
		}
	}
	c.logger.Error("fetch failed", zap.String("url", rawURL), zap.Error(err))
}

func (c *Crawler) recordStop(cause error) {
	if c.stoppedEarly {
		return
	}
	c.stoppedEarly = true
	if errors.Is(cause, context.DeadlineExceeded) {
		c.errs = append(c.errs, "job timeout exceeded; crawl stopped early")
		return
	}
	c.errs = append(c.errs, fmt.Sprintf("crawl canceled: %v", cause))
}

// PagesFetched reports how much of the page budget was spent.
func (c *Crawler) PagesFetched() int {
	return c.fetched
}

// Errors returns the accumulated non-fatal error messages.
func (c *Crawler) Errors() []string {
	return append([]string(nil), c.errs...)
}

func fetchErrorClass(kind FetchErrorKind) string {
	switch kind {
	case FetchErrTimeout:
		return "timeout"
	case FetchErrHTTPStatus:
		return "http_status"
	case FetchErrDNS:
		return "dns"
	case FetchErrConnection:
		return "connection"
	case FetchErrNotHTML:
		return "not_html"
	default:
		return "other"
	}
}
