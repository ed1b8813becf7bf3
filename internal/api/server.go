// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/transitops/notice-crawler/internal/crawler"
	"github.com/transitops/notice-crawler/internal/export"
	"github.com/transitops/notice-crawler/internal/notice"
)

// CrawlService is the engine surface the HTTP layer consumes.
type CrawlService interface {
	RunCrawl(ctx context.Context, req notice.CrawlRequest) (notice.CrawlResult, error)
	FetchDetail(ctx context.Context, site notice.Site, id string) (notice.Notice, error)
}

// Config controls server behavior.
type Config struct {
	// MaxConcurrentCrawls bounds simultaneous crawl invocations. Each one
	// holds a browser process, the machine's scarce resource.
	MaxConcurrentCrawls int
	MaxPagesDefault     int
	RequestTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentCrawls <= 0 {
		c.MaxConcurrentCrawls = 2
	}
	if c.MaxPagesDefault <= 0 {
		c.MaxPagesDefault = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 90 * time.Second
	}
	return c
}

// Server wires HTTP handlers to the crawl service and export renderer.
type Server struct {
	router   chi.Router
	svc      CrawlService
	renderer *export.Renderer
	admit    chan struct{}
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc CrawlService, renderer *export.Renderer, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	s := &Server{
		svc:      svc,
		renderer: renderer,
		admit:    make(chan struct{}, cfg.MaxConcurrentCrawls),
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sites", s.listSites)
		r.Post("/crawl", s.crawl)
		r.Post("/export", s.exportBatch)
		r.Route("/notices/{site}/{id}", func(r chi.Router) {
			r.Get("/", s.getNotice)
			r.Get("/document", s.getNoticeDocument)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, notice.SiteConfigs())
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var body crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := body.toCrawlRequest(s.cfg.MaxPagesDefault)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	release, ok := s.admitCrawl()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "crawler is at capacity, try again later")
		return
	}
	defer release()

	res, err := s.svc.RunCrawl(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getNotice(w http.ResponseWriter, r *http.Request) {
	site, id, err := noticeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	release, ok := s.admitCrawl()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "crawler is at capacity, try again later")
		return
	}
	defer release()

	n, err := s.svc.FetchDetail(r.Context(), site, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) getNoticeDocument(w http.ResponseWriter, r *http.Request) {
	site, id, err := noticeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	release, ok := s.admitCrawl()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "crawler is at capacity, try again later")
		return
	}
	defer release()

	n, err := s.svc.FetchDetail(r.Context(), site, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeDocument(w, fmt.Sprintf("notice_%s_%s.md", site, id), s.renderer.RenderOne(n))
}

func (s *Server) exportBatch(w http.ResponseWriter, r *http.Request) {
	var body exportRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(body.Notices) == 0 {
		writeError(w, http.StatusBadRequest, "notices required")
		return
	}
	doc := s.renderer.RenderBatch(body.Title, body.Notices)
	writeDocument(w, fmt.Sprintf("notices_%s.md", time.Now().Format("20060102")), doc)
}

// admitCrawl reserves a crawl slot without blocking: saturation is pushed
// back to the client immediately rather than queued behind a busy browser.
func (s *Server) admitCrawl() (func(), bool) {
	select {
	case s.admit <- struct{}{}:
		return func() { <-s.admit }, true
	default:
		return nil, false
	}
}

// writeServiceError maps engine errors onto classified HTTP statuses. The
// client never sees a raw automation error.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crawler.ErrSessionUnavailable):
		s.logger.Error("browser session unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "crawler backend unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "crawl timed out")
	case crawler.IsPermanent(err):
		s.logger.Error("site layout mismatch", zap.Error(err))
		writeError(w, http.StatusBadGateway, "site layout changed, crawl failed")
	default:
		var exhausted *crawler.ExhaustedRetriesError
		if errors.As(err, &exhausted) {
			writeError(w, http.StatusBadGateway, "site did not respond after retries")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func noticeParams(r *http.Request) (notice.Site, string, error) {
	site, err := notice.ParseSite(chi.URLParam(r, "site"))
	if err != nil {
		return "", "", err
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", "", errors.New("notice id required")
	}
	return site, id, nil
}

// crawlRequest is the wire shape of POST /v1/crawl.
type crawlRequest struct {
	Site        string            `json:"site"`
	Category    string            `json:"category"`
	StartDate   string            `json:"start_date"`
	EndDate     string            `json:"end_date"`
	MaxPages    *int              `json:"max_pages"`
	WithContent bool              `json:"with_content"`
	Extras      map[string]string `json:"extras"`
}

const dateLayout = "2006-01-02"

func (c crawlRequest) toCrawlRequest(maxPagesDefault int) (notice.CrawlRequest, error) {
	site, err := notice.ParseSite(c.Site)
	if err != nil {
		return notice.CrawlRequest{}, err
	}
	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return notice.CrawlRequest{}, fmt.Errorf("start_date: want YYYY-MM-DD, got %q", c.StartDate)
	}
	end, err := time.Parse(dateLayout, c.EndDate)
	if err != nil {
		return notice.CrawlRequest{}, fmt.Errorf("end_date: want YYYY-MM-DD, got %q", c.EndDate)
	}
	category := c.Category
	if category == "" {
		category = notice.CategoryAll
	}
	maxPages := maxPagesDefault
	if c.MaxPages != nil {
		maxPages = *c.MaxPages
	}
	req := notice.CrawlRequest{
		Site:        site,
		Category:    category,
		StartDate:   start,
		EndDate:     end,
		MaxPages:    maxPages,
		WithContent: c.WithContent,
		Extras:      c.Extras,
	}
	if err := req.Validate(); err != nil {
		return notice.CrawlRequest{}, err
	}
	return req, nil
}

// exportRequest is the wire shape of POST /v1/export: the client sends the
// already-crawled records it wants in the document.
type exportRequest struct {
	Title   string          `json:"title"`
	Notices []notice.Notice `json:"notices"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeDocument(w http.ResponseWriter, filename string, doc []byte) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		zap.L().Error("write document failed", zap.Error(err))
	}
}
