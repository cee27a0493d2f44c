package crawl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Default network bounds for a single page fetch.
const (
	DefaultFetchTimeout    = 10 * time.Second
	DefaultPolitenessDelay = 500 * time.Millisecond
)

// FetchErrorKind classifies why a fetch failed. The classification decides
// the error message recorded on the job and the log level used.
type FetchErrorKind int

// Fetch failure classes.
const (
	FetchErrTimeout FetchErrorKind = iota
	FetchErrHTTPStatus
	FetchErrDNS
	FetchErrConnection
	FetchErrNotHTML
	FetchErrOther
)

// FetchError describes a failed page fetch. All fetch errors are non-fatal
// to the crawl; they are recorded on the job and the crawl continues.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	cause      error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrTimeout:
		return fmt.Sprintf("timeout fetching %s", e.URL)
	case FetchErrHTTPStatus:
		return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
	case FetchErrDNS:
		return fmt.Sprintf("domain unreachable: %s", e.URL)
	case FetchErrConnection:
		return fmt.Sprintf("connection failed: %s", e.URL)
	case FetchErrNotHTML:
		return fmt.Sprintf("skipped non-HTML content: %s", e.URL)
	default:
		return fmt.Sprintf("unexpected error fetching %s: %v", e.URL, e.cause)
	}
}

func (e *FetchError) Unwrap() error { return e.cause }

// FetcherConfig controls single-fetch behavior.
type FetcherConfig struct {
	UserAgent       string
	Timeout         time.Duration
	PolitenessDelay time.Duration
}

// PageFetcher performs one bounded HTTP GET per call.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Fetcher implements PageFetcher using a Colly collector. Robots handling is
// intentionally disabled; crawls are scoped by the allow-list instead.
type Fetcher struct {
	cfg    FetcherConfig
	base   *colly.Collector
	logger *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.PolitenessDelay < 0 {
		cfg.PolitenessDelay = DefaultPolitenessDelay
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
	)
	return &Fetcher{cfg: cfg, base: c, logger: logger}
}

// Fetch executes a single HTTP GET and returns the page body. Non-HTML
// responses, HTTP error statuses, and transport failures all come back as a
// *FetchError. After a successful fetch the fixed politeness delay is waited
// out (context-aware) to bound the request rate.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	var (
		body        []byte
		contentType string
		statusCode  int
		fetchErr    error
	)

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
		statusCode = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return "", &FetchError{URL: rawURL, Kind: FetchErrTimeout, cause: ctx.Err()}
	case visitErr := <-done:
		if fetchErr == nil && visitErr != nil {
			fetchErr = visitErr
		}
	}
	if fetchErr != nil {
		return "", f.classify(rawURL, statusCode, fetchErr)
	}
	if !isHTMLContentType(contentType) {
		return "", &FetchError{URL: rawURL, Kind: FetchErrNotHTML}
	}

	f.pause(ctx, f.cfg.PolitenessDelay)
	return string(body), nil
}

// classify maps a transport or protocol failure onto a FetchError kind by
// inspecting the underlying cause.
func (f *Fetcher) classify(rawURL string, statusCode int, err error) *FetchError {
	fe := &FetchError{URL: rawURL, StatusCode: statusCode, cause: err}

	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case statusCode >= http.StatusBadRequest:
		fe.Kind = FetchErrHTTPStatus
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = FetchErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = FetchErrTimeout
	case errors.As(err, &dnsErr):
		fe.Kind = FetchErrDNS
	case errors.As(err, &opErr):
		fe.Kind = FetchErrConnection
	default:
		fe.Kind = FetchErrOther
	}
	return fe
}

func (f *Fetcher) pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func isHTMLContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
