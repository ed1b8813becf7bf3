package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/transitops/notice-crawler/internal/notice"
)

// ServiceConfig holds the engine knobs, decoupled from the configuration
// loader so the service stays easy to test.
type ServiceConfig struct {
	// Budget bounds the wall clock of one whole crawl invocation.
	Budget time.Duration
	// AttemptTimeout bounds each wrapped adapter call.
	AttemptTimeout time.Duration
	// PageDelay spaces successive listing page fetches.
	PageDelay time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Budget <= 0 {
		c.Budget = 45 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 15 * time.Second
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	return c
}

// Service owns the lifecycle of one browser session per crawl and exposes
// the top-level crawl operations consumed by the HTTP layer. Sessions are
// never shared across concurrent crawls; each invocation gets an isolated
// one so stale cookies and navigation history cannot bleed between requests.
type Service struct {
	sessions SessionProvider
	adapters AdapterFactory
	policy   RetryPolicy
	cfg      ServiceConfig
	logger   *zap.Logger
}

// NewService constructs the crawl service.
func NewService(sessions SessionProvider, adapters AdapterFactory, policy RetryPolicy, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = NewExponentialRetryPolicy()
	}
	return &Service{
		sessions: sessions,
		adapters: adapters,
		policy:   policy,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// RunCrawl acquires a session, drives the pagination loop, and releases the
// session on every exit path. The returned error is non-nil only when the
// crawl fully failed: a crawl that accumulated anything before running out
// of budget or hitting a listing failure comes back as a partial result
// with Truncated set.
func (s *Service) RunCrawl(ctx context.Context, req notice.CrawlRequest) (notice.CrawlResult, error) {
	if err := req.Validate(); err != nil {
		return notice.CrawlResult{}, err
	}
	start := time.Now()

	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		CrawlsCompleted.WithLabelValues(string(req.Site), "session_unavailable").Inc()
		return notice.CrawlResult{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	defer sess.Close()

	adapter, err := s.adapters(req.Site, sess)
	if err != nil {
		return notice.CrawlResult{}, err
	}

	crawlCtx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	driver := NewDriver(adapter, s.policy, s.cfg.AttemptTimeout, s.cfg.PageDelay, s.logger)
	res, runErr := driver.Run(crawlCtx, req)

	CrawlDuration.WithLabelValues(string(req.Site)).Observe(time.Since(start).Seconds())

	switch {
	case runErr == nil:
		CrawlsCompleted.WithLabelValues(string(req.Site), "ok").Inc()
		return res, nil
	case len(res.Notices) > 0 && ctx.Err() == nil:
		// Partially succeeded: surface what we have instead of failing the
		// whole request over a late-page error.
		res.Truncated = true
		CrawlsCompleted.WithLabelValues(string(req.Site), "partial").Inc()
		s.logger.Warn("crawl partially succeeded",
			zap.String("site", string(req.Site)),
			zap.Int("notices", len(res.Notices)),
			zap.Error(runErr))
		return res, nil
	default:
		CrawlsCompleted.WithLabelValues(string(req.Site), "failed").Inc()
		return notice.CrawlResult{}, runErr
	}
}

// FetchDetail retrieves one record with full content, used by single-record
// export. Same session scoping and retry semantics as RunCrawl.
func (s *Service) FetchDetail(ctx context.Context, site notice.Site, id string) (notice.Notice, error) {
	if _, err := notice.ParseSite(string(site)); err != nil {
		return notice.Notice{}, err
	}
	if id == "" {
		return notice.Notice{}, errors.New("notice id is required")
	}

	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return notice.Notice{}, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	defer sess.Close()

	adapter, err := s.adapters(site, sess)
	if err != nil {
		return notice.Notice{}, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	// Locate the record on the first listing pages so the result carries
	// its listing metadata, then attach the body.
	base, found := s.locate(opCtx, adapter, id)
	if !found {
		base = notice.Notice{Site: site, ID: id, Title: "공지사항 " + id, CreatedDate: time.Now()}
	}

	content, err := retry(opCtx, s.policy, s.cfg.AttemptTimeout, func(attemptCtx context.Context) (string, error) {
		return adapter.FetchDetail(attemptCtx, id)
	})
	if err != nil {
		return notice.Notice{}, &DetailFetchError{Site: site, ID: id, Err: err}
	}
	base.Content = content
	return base, nil
}

// locate scans the first few listing pages for the record's row. Best
// effort: a miss only costs the listing metadata, not the content.
func (s *Service) locate(ctx context.Context, adapter SiteAdapter, id string) (notice.Notice, bool) {
	const locatePages = 3
	filters := Filters{Category: notice.CategoryAll, SearchType: "title"}
	for page := 1; page <= locatePages; page++ {
		listing, err := retry(ctx, s.policy, s.cfg.AttemptTimeout, func(attemptCtx context.Context) (ListingPage, error) {
			return adapter.FetchListingPage(attemptCtx, page, filters)
		})
		if err != nil {
			return notice.Notice{}, false
		}
		for _, row := range listing.Rows {
			if row.ID != id {
				continue
			}
			if n, err := adapter.Normalize(row); err == nil {
				return n, true
			}
		}
		if !listing.HasMore {
			break
		}
	}
	return notice.Notice{}, false
}
