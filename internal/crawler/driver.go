package crawler

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/transitops/notice-crawler/internal/notice"
)

// Driver turns a sequence of listing pages into one deduplicated,
// date-filtered, page-capped notice list. It is site-agnostic: everything
// site-specific sits behind the SiteAdapter it drives.
type Driver struct {
	adapter        SiteAdapter
	policy         RetryPolicy
	attemptTimeout time.Duration
	pacer          *rate.Limiter
	logger         *zap.Logger
}

// NewDriver builds a driver around one adapter. attemptTimeout bounds each
// wrapped adapter call; pageDelay spaces successive listing fetches the way
// a polite human paginates.
func NewDriver(adapter SiteAdapter, policy RetryPolicy, attemptTimeout, pageDelay time.Duration, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	var pacer *rate.Limiter
	if pageDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(pageDelay), 1)
	}
	return &Driver{
		adapter:        adapter,
		policy:         policy,
		attemptTimeout: attemptTimeout,
		pacer:          pacer,
		logger:         logger,
	}
}

// Run crawls pages until the early-stop rule fires, the board reports no
// more pages, the page cap is hit, or the context expires. A context expiry
// with rows already accumulated is not an error: the partial accumulator is
// returned with Truncated set, leaving the full-vs-partial decision to the
// caller.
func (d *Driver) Run(ctx context.Context, req notice.CrawlRequest) (notice.CrawlResult, error) {
	acc := make(map[string]notice.Notice)
	res := notice.CrawlResult{}
	filters := Filters{
		Category:   req.Category,
		Keyword:    req.Extra("keyword", ""),
		SearchType: req.Extra("search_type", "title"),
	}

	earlyStop := false
	hasMore := true
	for page := 1; page <= req.MaxPages && hasMore && !earlyStop; page++ {
		if err := d.pace(ctx); err != nil {
			res.Truncated = true
			break
		}

		listing, err := retry(ctx, d.policy, d.attemptTimeout, func(attemptCtx context.Context) (ListingPage, error) {
			return d.adapter.FetchListingPage(attemptCtx, page, filters)
		})
		if err != nil {
			if ctx.Err() != nil && len(acc) > 0 {
				res.Truncated = true
				break
			}
			return d.finish(res, acc), &PageFetchError{Site: d.adapter.Site(), Page: page, Err: err}
		}
		res.PagesFetched++
		PagesFetched.WithLabelValues(string(d.adapter.Site())).Inc()

		for _, row := range listing.Rows {
			n, err := d.adapter.Normalize(row)
			if err != nil {
				// A single malformed row is skipped, not fatal. Listing
				// level layout changes surface from FetchListingPage.
				d.logger.Warn("skipping malformed row",
					zap.String("site", string(d.adapter.Site())),
					zap.String("row_id", row.ID),
					zap.Error(err))
				continue
			}
			RowsNormalized.WithLabelValues(string(n.Site)).Inc()

			switch {
			case n.CreatedDate.Before(req.StartDate):
				// Listings are newest-first; an older-than-window record
				// means the remaining pages are older still. Finish this
				// page's rows, then stop paginating.
				if !earlyStop {
					d.logger.Debug("early stop triggered",
						zap.String("site", string(n.Site)),
						zap.Int("page", page),
						zap.Time("created", n.CreatedDate))
				}
				earlyStop = true
			case n.CreatedDate.After(req.EndDate):
				// Future-of-window rows occur on boards with pinned or
				// concurrently added posts; they never end pagination.
			default:
				acc[n.Key()] = n
			}
		}

		hasMore = listing.HasMore
		if page == req.MaxPages && hasMore && !earlyStop {
			res.Truncated = true
		}
	}

	if req.WithContent {
		d.attachContent(ctx, acc, &res)
	}

	return d.finish(res, acc), nil
}

// attachContent issues a detail fetch per accumulated notice. A failure on
// one record never aborts the crawl; it is counted and the record keeps an
// empty content field.
func (d *Driver) attachContent(ctx context.Context, acc map[string]notice.Notice, res *notice.CrawlResult) {
	for key, n := range acc {
		if ctx.Err() != nil {
			res.Truncated = true
			return
		}
		content, err := retry(ctx, d.policy, d.attemptTimeout, func(attemptCtx context.Context) (string, error) {
			return d.adapter.FetchDetail(attemptCtx, n.ID)
		})
		if err != nil {
			if ctx.Err() != nil {
				res.Truncated = true
				return
			}
			res.PartialFailures++
			DetailFailures.WithLabelValues(string(n.Site)).Inc()
			d.logger.Warn("detail fetch failed",
				zap.String("site", string(n.Site)),
				zap.String("id", n.ID),
				zap.Error(err))
			continue
		}
		n.Content = content
		acc[key] = n
	}
}

func (d *Driver) pace(ctx context.Context) error {
	if d.pacer == nil {
		return ctx.Err()
	}
	return d.pacer.Wait(ctx)
}

// finish drains the accumulator into a deterministic ordering: created date
// descending, id descending on ties, independent of page arrival order.
func (d *Driver) finish(res notice.CrawlResult, acc map[string]notice.Notice) notice.CrawlResult {
	out := make([]notice.Notice, 0, len(acc))
	for _, n := range acc {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return notice.Less(out[i], out[j]) })
	res.Notices = out
	return res
}
