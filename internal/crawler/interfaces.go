package crawler

import (
	"context"
	"time"

	"github.com/transitops/notice-crawler/internal/notice"
)

// Browser is the capability surface a site adapter drives during one crawl.
// One implementation wraps a headless Chrome tab; tests substitute fakes.
type Browser interface {
	// Navigate loads the URL and blocks until waitVisible matches.
	Navigate(ctx context.Context, url, waitVisible string) error
	// Eval runs the script in page context, unmarshalling the result into
	// out when out is non-nil.
	Eval(ctx context.Context, script string, out any) error
	// WaitVisible blocks until the selector matches a visible node.
	WaitVisible(ctx context.Context, selector string) error
	// HTML returns the current DOM serialized as HTML.
	HTML(ctx context.Context) (string, error)
	// Pause sleeps in the browser context, honoring cancellation. Boards
	// re-render listings after tab and page switches without any DOM
	// signal worth waiting on.
	Pause(ctx context.Context, d time.Duration) error
}

// BrowserSession is a Browser with an owned lifetime. Close must be safe to
// call on every exit path.
type BrowserSession interface {
	Browser
	Close()
}

// SessionProvider hands out isolated browser sessions, one per crawl.
type SessionProvider interface {
	Acquire(ctx context.Context) (BrowserSession, error)
}

// RawRow is one listing row as scraped, before normalization. Field values
// are raw page text; Normalize owns parsing and validation.
type RawRow struct {
	ID            string
	Title         string
	CategoryLabel string
	DateText      string
	ViewCountText string
	Department    string
	HasAttachment bool
}

// ListingPage is the result of fetching one listing page.
type ListingPage struct {
	Rows    []RawRow
	HasMore bool
}

// Filters carries the per-crawl listing filters down to the adapter.
type Filters struct {
	Category   string // site-specific code, notice.CategoryAll for no filter
	Keyword    string
	SearchType string
}

// SiteAdapter is the per-board capability set. Both concrete adapters are
// driven identically by the pagination driver; the interface is exactly what
// keeps the driver site-agnostic.
type SiteAdapter interface {
	// Site identifies the board this adapter scrapes.
	Site() notice.Site
	// FetchListingPage loads the 1-based page and extracts its raw rows.
	FetchListingPage(ctx context.Context, page int, filters Filters) (ListingPage, error)
	// Normalize converts a raw row into a Notice. Pure; returns *ParseError
	// when a required field (id, title, date) is missing.
	Normalize(row RawRow) (notice.Notice, error)
	// FetchDetail returns the full content body for one record id.
	FetchDetail(ctx context.Context, id string) (string, error)
}

// AdapterFactory builds the adapter for a site, bound to one session.
type AdapterFactory func(site notice.Site, b Browser) (SiteAdapter, error)

// RetryPolicy classifies failures and paces retries.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}
