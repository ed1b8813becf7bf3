package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// detailProbe fetches server-rendered detail pages over plain HTTP. It is
// an order of magnitude cheaper than a browser navigation and covers the
// common case; callers fall back to the browser when the probe misses.
type detailProbe struct {
	base *colly.Collector
}

func newDetailProbe(cfg Config) *detailProbe {
	opts := []colly.CollectorOption{}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        16,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	base.SetRequestTimeout(cfg.HTTPTimeout)
	return &detailProbe{base: base}
}

// fetch retrieves the page and extracts the content body, returning an
// empty string when the page renders but carries no recognizable content.
func (p *detailProbe) fetch(ctx context.Context, url string) (string, error) {
	collector := p.base.Clone()

	var (
		once sync.Once
		body []byte
		rerr error
	)
	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() { body = append([]byte{}, r.Body...) })
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		once.Do(func() { rerr = err })
	})

	if err := collector.Visit(url); err != nil {
		return "", err
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rerr != nil {
		return "", fmt.Errorf("probe %s: %w", url, rerr)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	return extractICTRDetail(doc), nil
}
