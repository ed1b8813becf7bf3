// Package site holds the two concrete notice-board adapters. Everything
// selector- and URL-shaped lives here; the engine in internal/crawler never
// sees a site-specific detail.
package site

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/transitops/notice-crawler/internal/crawler"
	"github.com/transitops/notice-crawler/internal/notice"
)

// Config carries the per-deployment knobs shared by both adapters.
type Config struct {
	TOPISBaseURL string
	ICTRBaseURL  string
	UserAgent    string
	// SettleDelay is how long to let a board re-render after a JS-driven
	// tab switch or page change. Neither board exposes a DOM signal for it.
	SettleDelay time.Duration
	// HTTPTimeout bounds the plain-HTTP detail probe.
	HTTPTimeout time.Duration
	Logger      *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.TOPISBaseURL == "" {
		c.TOPISBaseURL = "https://topis.seoul.go.kr"
	}
	if c.ICTRBaseURL == "" {
		c.ICTRBaseURL = "https://www.ictr.or.kr"
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 700 * time.Millisecond
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Factory returns the adapter factory the crawl service consumes.
func Factory(cfg Config) crawler.AdapterFactory {
	cfg = cfg.withDefaults()
	return func(s notice.Site, b crawler.Browser) (crawler.SiteAdapter, error) {
		switch s {
		case notice.SiteTOPIS:
			return NewTOPIS(b, cfg), nil
		case notice.SiteICTR:
			return NewICTR(b, cfg), nil
		}
		return nil, fmt.Errorf("no adapter for site %q", s)
	}
}

const dateLayout = "2006.01.02"

var spaceRun = regexp.MustCompile(`\s+`)

// cleanText collapses whitespace runs the way browsers render them.
func cleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// firstText returns the first selector's non-trivial text content. Boards
// shuffle their markup between releases; a cascade keeps the adapters
// tolerant of the variants seen in production.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		text := cleanText(doc.Find(sel).First().Text())
		if len([]rune(text)) > 10 {
			return text
		}
	}
	return ""
}
