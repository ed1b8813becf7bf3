package site

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/transitops/notice-crawler/internal/crawler"
	"github.com/transitops/notice-crawler/internal/notice"
)

// TOPIS scrapes the Seoul traffic information center notice board. The
// board is a classic server-page with JS-driven tabs and pagination: tab
// and page switches call page-global functions that repaint #notiList.
type TOPIS struct {
	b      crawler.Browser
	cfg    Config
	logger *zap.Logger

	loaded     bool
	appliedTab string
}

// NewTOPIS binds the adapter to one browser session.
func NewTOPIS(b crawler.Browser, cfg Config) *TOPIS {
	return &TOPIS{b: b, cfg: cfg, logger: cfg.Logger}
}

// Site identifies the board.
func (t *TOPIS) Site() notice.Site { return notice.SiteTOPIS }

// FetchListingPage drives the board to the requested page and extracts its
// rows. Page switching goes through the board's own fn_getNoticeList so the
// session keeps whatever tab filter is active.
func (t *TOPIS) FetchListingPage(ctx context.Context, page int, filters crawler.Filters) (crawler.ListingPage, error) {
	if !t.loaded {
		url := t.cfg.TOPISBaseURL + "/notice/openNoticeList.do"
		if err := t.b.Navigate(ctx, url, "#notiList"); err != nil {
			return crawler.ListingPage{}, err
		}
		t.loaded = true
	}

	if code := topisCategoryCode(filters.Category); code != "" && code != t.appliedTab {
		script := fmt.Sprintf("fn_getNoticeTabList('%s', 1);", code)
		if err := t.b.Eval(ctx, script, nil); err != nil {
			return crawler.ListingPage{}, err
		}
		t.appliedTab = code
		if err := t.b.Pause(ctx, t.cfg.SettleDelay); err != nil {
			return crawler.ListingPage{}, err
		}
	}

	if page > 1 {
		script := fmt.Sprintf("fn_getNoticeList(%d);", page)
		if err := t.b.Eval(ctx, script, nil); err != nil {
			return crawler.ListingPage{}, err
		}
		if err := t.b.Pause(ctx, t.cfg.SettleDelay); err != nil {
			return crawler.ListingPage{}, err
		}
	}

	if err := t.b.WaitVisible(ctx, "#notiList"); err != nil {
		return crawler.ListingPage{}, err
	}
	html, err := t.b.HTML(ctx)
	if err != nil {
		return crawler.ListingPage{}, err
	}
	return parseTOPISListing(html, page)
}

// Normalize converts a raw listing row into a Notice.
func (t *TOPIS) Normalize(row crawler.RawRow) (notice.Notice, error) {
	if row.ID == "" || row.Title == "" {
		return notice.Notice{}, &crawler.ParseError{Site: notice.SiteTOPIS, Reason: "row missing id or title"}
	}
	created, err := time.Parse(dateLayout, row.DateText)
	if err != nil {
		return notice.Notice{}, &crawler.ParseError{
			Site:   notice.SiteTOPIS,
			Reason: fmt.Sprintf("row %s: bad date %q", row.ID, row.DateText),
		}
	}

	category := "기타안내"
	if _, ok := notice.TOPISCategoryLabels[row.CategoryLabel]; ok {
		category = row.CategoryLabel
	}

	views := 0
	if v, err := strconv.Atoi(strings.ReplaceAll(row.ViewCountText, ",", "")); err == nil && v >= 0 {
		views = v
	}

	return notice.Notice{
		Site:          notice.SiteTOPIS,
		ID:            row.ID,
		Title:         row.Title,
		Category:      category,
		CreatedDate:   created,
		ViewCount:     &views,
		HasAttachment: row.HasAttachment,
	}, nil
}

// FetchDetail loads the record's view page and extracts the content body.
// The primary route goes through the board's fn_goNotiView, which is only
// defined on the listing page; the direct view URL is the fallback.
func (t *TOPIS) FetchDetail(ctx context.Context, id string) (string, error) {
	listURL := t.cfg.TOPISBaseURL + "/notice/openNoticeList.do"
	if err := t.b.Navigate(ctx, listURL, "#notiList"); err != nil {
		return "", err
	}
	t.loaded = false // detail navigation invalidates the listing state
	t.appliedTab = ""

	script := fmt.Sprintf("fn_goNotiView('02', '%s');", id)
	if err := t.b.Eval(ctx, script, nil); err == nil {
		if err := t.b.Pause(ctx, 2*t.cfg.SettleDelay); err != nil {
			return "", err
		}
		if content, err := t.extractDetail(ctx); err == nil && content != "" {
			return content, nil
		}
	}

	t.logger.Debug("board view function route missed, using direct view url",
		zap.String("id", id))
	viewURL := fmt.Sprintf("%s/notice/openNoticeView.do?bdwrSeq=%s&blbdDivCd=02", t.cfg.TOPISBaseURL, id)
	if err := t.b.Navigate(ctx, viewURL, "body"); err != nil {
		return "", err
	}
	content, err := t.extractDetail(ctx)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", &crawler.ParseError{Site: notice.SiteTOPIS, Reason: "detail " + id + ": content not found"}
	}
	return content, nil
}

func (t *TOPIS) extractDetail(ctx context.Context) (string, error) {
	html, err := t.b.HTML(ctx)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	return firstText(doc, "#brdContents", ".dtl-body", ".board-content", ".content-area"), nil
}

var topisPageRefs = regexp.MustCompile(`fn_getNoticeList\((\d+)\)`)

// parseTOPISListing extracts raw rows and the has-more signal from a DOM
// snapshot of the listing page.
func parseTOPISListing(html string, page int) (crawler.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.ListingPage{}, err
	}
	table := doc.Find("#notiList")
	if table.Length() == 0 {
		return crawler.ListingPage{}, &crawler.ParseError{Site: notice.SiteTOPIS, Reason: "#notiList not found"}
	}

	var rows []crawler.RawRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 5 {
			return
		}
		titleCell := cells.Eq(1)
		label := cleanText(titleCell.Find(".label").First().Text())
		title := cleanText(titleCell.Find("a").First().Text())
		if label != "" {
			title = cleanText(strings.TrimPrefix(title, label))
		}
		hasAttachment := cells.Eq(2).Find("img[alt*='첨부파일']").Length() > 0

		rows = append(rows, crawler.RawRow{
			ID:            cleanText(cells.Eq(0).Text()),
			Title:         title,
			CategoryLabel: label,
			DateText:      cleanText(cells.Eq(3).Text()),
			ViewCountText: cleanText(cells.Eq(4).Text()),
			HasAttachment: hasAttachment,
		})
	})

	// The pagination block references reachable pages through onclick
	// handlers; the highest referenced page tells us whether more remain.
	maxPage := page
	for _, m := range topisPageRefs.FindAllStringSubmatch(html, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
			maxPage = n
		}
	}

	return crawler.ListingPage{Rows: rows, HasMore: maxPage > page}, nil
}

// topisCategoryCode maps the request category (code, board label, or the
// "all" sentinel) onto the board's tab code. Empty means no tab switch.
func topisCategoryCode(category string) string {
	switch category {
	case "", notice.CategoryAll, notice.TOPISCategoryAll:
		return ""
	case notice.TOPISCategoryTrafficControl, notice.TOPISCategoryBus,
		notice.TOPISCategoryPolicy, notice.TOPISCategoryWeather, notice.TOPISCategoryEtc:
		return category
	}
	if code, ok := notice.TOPISCategoryLabels[category]; ok {
		return code
	}
	return ""
}
