package crawler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/transitops/notice-crawler/internal/notice"
)

type fakeSession struct {
	closed atomic.Bool
}

func (s *fakeSession) Navigate(context.Context, string, string) error { return nil }
func (s *fakeSession) Eval(context.Context, string, any) error        { return nil }
func (s *fakeSession) WaitVisible(context.Context, string) error      { return nil }
func (s *fakeSession) HTML(context.Context) (string, error)           { return "", nil }
func (s *fakeSession) Pause(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
func (s *fakeSession) Close() { s.closed.Store(true) }

type fakeProvider struct {
	sess *fakeSession
	err  error
}

func (p *fakeProvider) Acquire(context.Context) (BrowserSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.sess, nil
}

func factoryFor(adapter SiteAdapter) AdapterFactory {
	return func(notice.Site, Browser) (SiteAdapter, error) { return adapter, nil }
}

func serviceConfig() ServiceConfig {
	return ServiceConfig{Budget: time.Second, AttemptTimeout: 500 * time.Millisecond}
}

func TestService_SessionUnavailable(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{err: errors.New("chrome failed to launch")}
	svc := NewService(provider, factoryFor(newFakeAdapter()), testPolicy(), serviceConfig(), nil)

	_, err := svc.RunCrawl(context.Background(), window("2025-02-01", "2025-02-10"))
	require.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestService_ReleasesSessionOnSuccess(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter()
	f.pages[1] = ListingPage{Rows: []RawRow{row("1", "a", "2025-02-03")}, HasMore: false}
	sess := &fakeSession{}
	svc := NewService(&fakeProvider{sess: sess}, factoryFor(f), testPolicy(), serviceConfig(), nil)

	res, err := svc.RunCrawl(context.Background(), window("2025-02-01", "2025-02-10"))
	require.NoError(t, err)
	require.Len(t, res.Notices, 1)
	require.True(t, sess.closed.Load())
}

func TestService_ReleasesSessionOnFailure(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter()
	f.pageErrs[1] = []error{&ParseError{Site: notice.SiteTOPIS, Reason: "table gone"}}
	sess := &fakeSession{}
	svc := NewService(&fakeProvider{sess: sess}, factoryFor(f), testPolicy(), serviceConfig(), nil)

	_, err := svc.RunCrawl(context.Background(), window("2025-02-01", "2025-02-10"))
	require.Error(t, err)
	require.True(t, sess.closed.Load())
}

// blockingAdapter serves page 1 instantly, then blocks until the crawl budget
// expires.
type blockingAdapter struct {
	*fakeAdapter
}

func (b *blockingAdapter) FetchListingPage(ctx context.Context, page int, filters Filters) (ListingPage, error) {
	if page > 1 {
		<-ctx.Done()
		return ListingPage{}, ctx.Err()
	}
	return b.fakeAdapter.FetchListingPage(ctx, page, filters)
}

func TestService_BudgetExpiryYieldsPartialResult(t *testing.T) {
	t.Parallel()
	inner := newFakeAdapter()
	inner.pages[1] = ListingPage{Rows: []RawRow{row("42", "made it", "2025-02-03")}, HasMore: true}

	cfg := ServiceConfig{Budget: 50 * time.Millisecond, AttemptTimeout: time.Second}
	svc := NewService(&fakeProvider{sess: &fakeSession{}}, factoryFor(&blockingAdapter{inner}), testPolicy(), cfg, nil)

	res, err := svc.RunCrawl(context.Background(), window("2025-02-01", "2025-02-10"))
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Len(t, res.Notices, 1)
	require.Equal(t, "42", res.Notices[0].ID)
}

func TestService_FullyFailedCrawlReturnsError(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter()
	f.pageErrs[1] = []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
	}
	svc := NewService(&fakeProvider{sess: &fakeSession{}}, factoryFor(f), testPolicy(), serviceConfig(), nil)

	res, err := svc.RunCrawl(context.Background(), window("2025-02-01", "2025-02-10"))
	var exhausted *ExhaustedRetriesError
	require.ErrorAs(t, err, &exhausted)
	require.Empty(t, res.Notices)
}

func TestService_RejectsInvalidRequest(t *testing.T) {
	t.Parallel()
	svc := NewService(&fakeProvider{sess: &fakeSession{}}, factoryFor(newFakeAdapter()), testPolicy(), serviceConfig(), nil)

	req := window("2025-02-10", "2025-02-01") // inverted window
	_, err := svc.RunCrawl(context.Background(), req)
	require.Error(t, err)
}

func TestService_FetchDetailUsesListingMetadata(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter()
	f.pages[1] = ListingPage{Rows: []RawRow{
		row("88", "found on the board", "2025-02-03"),
	}, HasMore: false}
	f.details["88"] = "full body"
	sess := &fakeSession{}
	svc := NewService(&fakeProvider{sess: sess}, factoryFor(f), testPolicy(), serviceConfig(), nil)

	n, err := svc.FetchDetail(context.Background(), notice.SiteTOPIS, "88")
	require.NoError(t, err)
	require.Equal(t, "found on the board", n.Title)
	require.Equal(t, "full body", n.Content)
	require.True(t, sess.closed.Load())
}

func TestService_FetchDetailFailure(t *testing.T) {
	t.Parallel()
	f := newFakeAdapter()
	f.pages[1] = ListingPage{HasMore: false}
	f.detailErrs["7"] = &ParseError{Site: notice.SiteTOPIS, Reason: "content not found"}
	svc := NewService(&fakeProvider{sess: &fakeSession{}}, factoryFor(f), testPolicy(), serviceConfig(), nil)

	_, err := svc.FetchDetail(context.Background(), notice.SiteTOPIS, "7")
	var detailErr *DetailFetchError
	require.ErrorAs(t, err, &detailErr)
	require.Equal(t, "7", detailErr.ID)
}
