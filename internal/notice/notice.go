// Package notice defines the normalized record type shared by every notice
// board source, plus the request/result contracts of the crawl engine.
package notice

import (
	"fmt"
	"strconv"
	"time"
)

// Site identifies the origin notice board.
type Site string

// Supported sites.
const (
	SiteTOPIS Site = "topis" // Seoul TOPIS traffic information center
	SiteICTR  Site = "ictr"  // Incheon Transit Corporation
)

// ParseSite converts the wire value into a Site.
func ParseSite(s string) (Site, error) {
	switch Site(s) {
	case SiteTOPIS, SiteICTR:
		return Site(s), nil
	}
	return "", fmt.Errorf("unknown site %q", s)
}

// CategoryAll is the sentinel accepted by every site.
const CategoryAll = "all"

// Notice is one normalized board posting. Instances are treated as
// immutable; a detail fetch produces a copy with Content populated.
type Notice struct {
	Site          Site      `json:"site"`
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	CreatedDate   time.Time `json:"created_date"`
	ViewCount     *int      `json:"view_count,omitempty"`
	Department    string    `json:"department,omitempty"`
	HasAttachment bool      `json:"has_attachment"`
	Content       string    `json:"content,omitempty"`
}

// Key returns the global identity of the record, unique within one crawl.
func (n Notice) Key() string {
	return string(n.Site) + "/" + n.ID
}

// Less orders notices newest-first, id-descending on equal dates. Both
// boards issue numeric sequence ids, so ids that parse as integers compare
// numerically; anything else falls back to a bytewise comparison.
func Less(a, b Notice) bool {
	if !a.CreatedDate.Equal(b.CreatedDate) {
		return a.CreatedDate.After(b.CreatedDate)
	}
	ai, aerr := strconv.ParseInt(a.ID, 10, 64)
	bi, berr := strconv.ParseInt(b.ID, 10, 64)
	if aerr == nil && berr == nil {
		return ai > bi
	}
	return a.ID > b.ID
}

// CrawlRequest is the input contract of the engine. Site-specific knobs
// (keyword, search type) ride in Extras so adding a site never changes
// this struct.
type CrawlRequest struct {
	Site        Site              `json:"site"`
	Category    string            `json:"category"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
	MaxPages    int               `json:"max_pages"`
	WithContent bool              `json:"with_content"`
	Extras      map[string]string `json:"extras,omitempty"`
}

// Extra returns the named extension value or its default.
func (r CrawlRequest) Extra(key, def string) string {
	if v, ok := r.Extras[key]; ok && v != "" {
		return v
	}
	return def
}

// Validate enforces the request invariants before a session is acquired.
func (r CrawlRequest) Validate() error {
	if _, err := ParseSite(string(r.Site)); err != nil {
		return err
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("start_date and end_date are required")
	}
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("start_date %s must not be after end_date %s",
			r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))
	}
	if r.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive, got %d", r.MaxPages)
	}
	return nil
}

// InRange reports whether d falls inside the inclusive request window.
func (r CrawlRequest) InRange(d time.Time) bool {
	return !d.Before(r.StartDate) && !d.After(r.EndDate)
}

// CrawlResult is what the engine hands back to the HTTP layer and the
// export renderer.
type CrawlResult struct {
	Notices         []Notice `json:"notices"`
	Truncated       bool     `json:"truncated"`
	PartialFailures int      `json:"partial_failures"`
	PagesFetched    int      `json:"pages_fetched"`
}
