package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transitops/notice-crawler/internal/crawler"
	"github.com/transitops/notice-crawler/internal/export"
	"github.com/transitops/notice-crawler/internal/notice"
)

type fakeService struct {
	mu        sync.Mutex
	crawlReq  notice.CrawlRequest
	crawlRes  notice.CrawlResult
	crawlErr  error
	detailRes notice.Notice
	detailErr error
	block     chan struct{} // when set, RunCrawl waits on it
}

func (f *fakeService) RunCrawl(ctx context.Context, req notice.CrawlRequest) (notice.CrawlResult, error) {
	f.mu.Lock()
	f.crawlReq = req
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return notice.CrawlResult{}, ctx.Err()
		}
	}
	return f.crawlRes, f.crawlErr
}

func (f *fakeService) FetchDetail(context.Context, notice.Site, string) (notice.Notice, error) {
	return f.detailRes, f.detailErr
}

func newTestServer(svc CrawlService) *Server {
	return NewServer(svc, export.NewRenderer(), Config{
		MaxConcurrentCrawls: 1,
		MaxPagesDefault:     3,
		RequestTimeout:      5 * time.Second,
	}, zap.NewNop())
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeService{})
	require.Equal(t, http.StatusOK, get(srv.Handler(), "/healthz").Code)
	require.Equal(t, http.StatusOK, get(srv.Handler(), "/readyz").Code)
	require.Equal(t, http.StatusOK, get(srv.Handler(), "/metrics").Code)
}

func TestListSites(t *testing.T) {
	t.Parallel()
	rec := get(newTestServer(&fakeService{}).Handler(), "/v1/sites")
	require.Equal(t, http.StatusOK, rec.Code)

	var sites map[string]notice.SiteConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sites))
	require.Contains(t, sites, "topis")
	require.Contains(t, sites, "ictr")
}

func TestCrawl_OK(t *testing.T) {
	t.Parallel()
	svc := &fakeService{crawlRes: notice.CrawlResult{
		Notices:      []notice.Notice{{Site: notice.SiteTOPIS, ID: "1", Title: "t"}},
		PagesFetched: 2,
	}}
	srv := newTestServer(svc)

	rec := postJSON(t, srv.Handler(), "/v1/crawl", map[string]any{
		"site":       "topis",
		"start_date": "2025-01-01",
		"end_date":   "2025-01-31",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res notice.CrawlResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Notices, 1)

	// Defaults applied server-side.
	require.Equal(t, 3, svc.crawlReq.MaxPages)
	require.Equal(t, notice.CategoryAll, svc.crawlReq.Category)
}

func TestCrawl_BadRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeService{})

	cases := []map[string]any{
		{"site": "busan", "start_date": "2025-01-01", "end_date": "2025-01-31"},
		{"site": "topis", "start_date": "01/01/2025", "end_date": "2025-01-31"},
		{"site": "topis", "start_date": "2025-01-31", "end_date": "2025-01-01"},
	}
	for _, body := range cases {
		rec := postJSON(t, srv.Handler(), "/v1/crawl", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCrawl_SessionUnavailable(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeService{crawlErr: crawler.ErrSessionUnavailable})
	rec := postJSON(t, srv.Handler(), "/v1/crawl", map[string]any{
		"site": "topis", "start_date": "2025-01-01", "end_date": "2025-01-31",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCrawl_UpstreamFailure(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeService{crawlErr: &crawler.ExhaustedRetriesError{
		Attempts: 3,
		Cause:    errors.New("connection reset"),
	}})
	rec := postJSON(t, srv.Handler(), "/v1/crawl", map[string]any{
		"site": "topis", "start_date": "2025-01-01", "end_date": "2025-01-31",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCrawl_Saturation(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	svc := &fakeService{block: block}
	srv := newTestServer(svc)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		postJSON(t, srv.Handler(), "/v1/crawl", map[string]any{
			"site": "topis", "start_date": "2025-01-01", "end_date": "2025-01-31",
		})
	}()
	<-started
	// Give the in-flight request time to take the only slot.
	require.Eventually(t, func() bool {
		rec := postJSON(t, srv.Handler(), "/v1/crawl", map[string]any{
			"site": "topis", "start_date": "2025-01-01", "end_date": "2025-01-31",
		})
		return rec.Code == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)

	close(block)
	<-done
}

func TestGetNotice(t *testing.T) {
	t.Parallel()
	svc := &fakeService{detailRes: notice.Notice{
		Site: notice.SiteICTR, ID: "5501", Title: "운행시간 조정", Content: "본문",
	}}
	rec := get(newTestServer(svc).Handler(), "/v1/notices/ictr/5501")
	require.Equal(t, http.StatusOK, rec.Code)

	var n notice.Notice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	require.Equal(t, "5501", n.ID)
	require.Equal(t, "본문", n.Content)
}

func TestGetNotice_BadSite(t *testing.T) {
	t.Parallel()
	rec := get(newTestServer(&fakeService{}).Handler(), "/v1/notices/busan/1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNoticeDocument(t *testing.T) {
	t.Parallel()
	svc := &fakeService{detailRes: notice.Notice{
		Site: notice.SiteTOPIS, ID: "12345", Title: "공사 안내", Content: "본문",
	}}
	rec := get(newTestServer(svc).Handler(), "/v1/notices/topis/12345/document")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	require.Contains(t, rec.Header().Get("Content-Disposition"), "notice_topis_12345.md")
	require.Contains(t, rec.Body.String(), "# 공사 안내")
}

func TestExportBatch(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeService{})
	rec := postJSON(t, srv.Handler(), "/v1/export", map[string]any{
		"title": "주간 공지",
		"notices": []map[string]any{
			{"site": "topis", "id": "1", "title": "첫 공지", "created_date": "2025-01-10T00:00:00Z"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# 주간 공지")

	empty := postJSON(t, srv.Handler(), "/v1/export", map[string]any{"notices": []any{}})
	require.Equal(t, http.StatusBadRequest, empty.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()
	rec := get(newTestServer(&fakeService{}).Handler(), "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	newTestServer(&fakeService{}).Handler().ServeHTTP(rec, req)
	require.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}
