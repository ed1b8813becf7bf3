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

// ICTR scrapes the Incheon Transit Corporation notice board. The listing
// is a search form over ul.generalList; pagination happens by clicking the
// numbered anchors of the already-loaded page, which is why the adapter
// must keep its session between pages.
type ICTR struct {
	b      crawler.Browser
	probe  *detailProbe
	cfg    Config
	logger *zap.Logger

	loaded        bool
	appliedSearch string
}

// NewICTR binds the adapter to one browser session.
func NewICTR(b crawler.Browser, cfg Config) *ICTR {
	return &ICTR{
		b:      b,
		probe:  newDetailProbe(cfg),
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Site identifies the board.
func (c *ICTR) Site() notice.Site { return notice.SiteICTR }

// FetchListingPage drives the board to the requested page. The first call
// loads the list and applies the search filters; later calls click through
// the pagination of the live page.
func (c *ICTR) FetchListingPage(ctx context.Context, page int, filters crawler.Filters) (crawler.ListingPage, error) {
	if !c.loaded {
		url := c.cfg.ICTRBaseURL + "/main/board/notice.jsp"
		if err := c.b.Navigate(ctx, url, ""); err != nil {
			return crawler.ListingPage{}, err
		}
		if err := c.b.WaitVisible(ctx, "ul.generalList"); err != nil {
			// Some deployments render the legacy table layout instead.
			if err := c.b.WaitVisible(ctx, ".board_list"); err != nil {
				return crawler.ListingPage{}, err
			}
		}
		c.loaded = true
	}

	if filters.Keyword != "" && filters.Keyword != c.appliedSearch {
		if err := c.applySearch(ctx, filters); err != nil {
			return crawler.ListingPage{}, err
		}
		c.appliedSearch = filters.Keyword
	}

	if page > 1 {
		clicked, err := c.clickPage(ctx, page)
		if err != nil {
			return crawler.ListingPage{}, err
		}
		if !clicked {
			// No anchor for this page: the listing ends here.
			return crawler.ListingPage{HasMore: false}, nil
		}
		if err := c.b.Pause(ctx, c.cfg.SettleDelay); err != nil {
			return crawler.ListingPage{}, err
		}
	}

	html, err := c.b.HTML(ctx)
	if err != nil {
		return crawler.ListingPage{}, err
	}
	return parseICTRListing(html, page)
}

func (c *ICTR) applySearch(ctx context.Context, filters crawler.Filters) error {
	searchType := filters.SearchType
	switch searchType {
	case "title", "content", "titlecontent":
	default:
		searchType = "title"
	}
	script := fmt.Sprintf(`(function() {
		var f = document.getElementsByName('keyfield')[0];
		if (f) { f.value = %q; }
		var k = document.getElementsByName('keyword')[0];
		if (k) { k.value = %q; }
		var b = document.querySelector('.btn_search');
		if (b) { b.click(); return true; }
		return false;
	})()`, searchType, filters.Keyword)

	var ok bool
	if err := c.b.Eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return &crawler.ParseError{Site: notice.SiteICTR, Reason: "search form not found"}
	}
	return c.b.Pause(ctx, c.cfg.SettleDelay)
}

// clickPage activates the pagination anchor for the page, reporting whether
// one existed.
func (c *ICTR) clickPage(ctx context.Context, page int) (bool, error) {
	script := fmt.Sprintf(`(function() {
		var a = document.querySelector("a[title='%d page']");
		if (!a) {
			var links = document.querySelectorAll('.paging a');
			for (var i = 0; i < links.length; i++) {
				if (links[i].textContent.trim() === '%d') { a = links[i]; break; }
			}
		}
		if (a) { a.click(); return true; }
		return false;
	})()`, page, page)

	var clicked bool
	if err := c.b.Eval(ctx, script, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

// Normalize converts a raw listing row into a Notice. ICTR rows carry no
// view count, so the field stays absent.
func (c *ICTR) Normalize(row crawler.RawRow) (notice.Notice, error) {
	if row.ID == "" || row.Title == "" {
		return notice.Notice{}, &crawler.ParseError{Site: notice.SiteICTR, Reason: "row missing id or title"}
	}
	created, err := time.Parse(dateLayout, row.DateText)
	if err != nil {
		return notice.Notice{}, &crawler.ParseError{
			Site:   notice.SiteICTR,
			Reason: fmt.Sprintf("row %s: bad date %q", row.ID, row.DateText),
		}
	}
	return notice.Notice{
		Site:          notice.SiteICTR,
		ID:            row.ID,
		Title:         row.Title,
		Category:      "기타안내",
		CreatedDate:   created,
		Department:    row.Department,
		HasAttachment: row.HasAttachment,
	}, nil
}

// FetchDetail retrieves the content body. The detail page is plain
// server-rendered JSP, so a direct HTTP probe comes first; the browser
// route is the fallback when the probe is blocked or comes back empty.
func (c *ICTR) FetchDetail(ctx context.Context, id string) (string, error) {
	url := fmt.Sprintf("%s/main/bbs/bbsMsgDetail.do?msg_seq=%s&bcd=notice", c.cfg.ICTRBaseURL, id)

	if content, err := c.probe.fetch(ctx, url); err == nil && content != "" {
		return content, nil
	} else if err != nil {
		c.logger.Debug("detail probe failed, falling back to browser",
			zap.String("id", id), zap.Error(err))
	}

	if err := c.b.Navigate(ctx, url, "body"); err != nil {
		return "", err
	}
	c.loaded = false // detail navigation invalidates the listing state
	c.appliedSearch = ""
	if err := c.b.Pause(ctx, c.cfg.SettleDelay); err != nil {
		return "", err
	}
	html, err := c.b.HTML(ctx)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	content := extractICTRDetail(doc)
	if content == "" {
		return "", &crawler.ParseError{Site: notice.SiteICTR, Reason: "detail " + id + ": content not found"}
	}
	return content, nil
}

func extractICTRDetail(doc *goquery.Document) string {
	return firstText(doc,
		".board_view .content",
		".view_content",
		".board_content",
		"#detail_con .board_view",
		".detail_content",
	)
}

var (
	ictrSeqRef  = regexp.MustCompile(`msg_seq=(\d+)`)
	ictrPageRef = regexp.MustCompile(`현재페이지\s+(\d+)/(\d+)`)
	ictrNewTag  = regexp.MustCompile(`(?i)\s*new\s*$`)
)

// parseICTRListing extracts raw rows and the has-more signal from a DOM
// snapshot of the listing page.
func parseICTRListing(html string, page int) (crawler.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.ListingPage{}, err
	}
	items := doc.Find("ul.generalList > li")
	if items.Length() == 0 && doc.Find(".board_list").Length() == 0 {
		return crawler.ListingPage{}, &crawler.ParseError{Site: notice.SiteICTR, Reason: "listing markup not found"}
	}

	var rows []crawler.RawRow
	items.Each(func(_ int, li *goquery.Selection) {
		link := li.Find("p.title a").First()
		if link.Length() == 0 {
			link = li.Find("a").First()
		}
		href, _ := link.Attr("href")
		m := ictrSeqRef.FindStringSubmatch(href)
		if m == nil {
			return
		}
		title := ictrNewTag.ReplaceAllString(cleanText(link.Text()), "")

		row := crawler.RawRow{ID: m[1], Title: title}
		li.Find("div.writer_info ul li").Each(func(_ int, info *goquery.Selection) {
			class, _ := info.Attr("class")
			titleAttr, _ := info.Attr("title")
			text := cleanText(info.Text())
			switch {
			case strings.Contains(class, "w80") || titleAttr == "작성일":
				row.DateText = text
			case strings.Contains(class, "writer") || titleAttr == "작성자":
				row.Department = text
			case strings.Contains(class, "file"):
				row.HasAttachment = info.Find("a").Length() > 0
			}
		})
		rows = append(rows, row)
	})

	hasMore := false
	if m := ictrPageRef.FindStringSubmatch(doc.Find(".written").Text()); m != nil {
		cur, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		hasMore = cur < total
	} else {
		doc.Find(".paging a.num").Each(func(_ int, a *goquery.Selection) {
			if n, err := strconv.Atoi(cleanText(a.Text())); err == nil && n > page {
				hasMore = true
			}
		})
	}

	return crawler.ListingPage{Rows: rows, HasMore: hasMore}, nil
}
