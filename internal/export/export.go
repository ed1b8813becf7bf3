// Package export renders crawled notices into a self-contained document.
// It is a pure formatting consumer: it never touches the engine and treats
// the notice batch it is given as transient.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/transitops/notice-crawler/internal/notice"
)

const divider = "---"

// Renderer produces markdown documents from normalized notices.
type Renderer struct {
	now func() time.Time
}

// NewRenderer builds a renderer using wall-clock time for footers.
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// NewRendererAt pins the generation timestamp, used by tests.
func NewRendererAt(now func() time.Time) *Renderer {
	return &Renderer{now: now}
}

// RenderOne produces a document for a single notice.
func (r *Renderer) RenderOne(n notice.Notice) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", n.Title)
	r.writeMeta(&b, n)
	b.WriteString("\n## 내용\n\n")
	r.writeContent(&b, n)
	r.writeFooter(&b, n.Site)
	return []byte(b.String())
}

// RenderBatch produces one document covering the whole batch, in the order
// given (the engine already ordered it deterministically).
func (r *Renderer) RenderBatch(title string, notices []notice.Notice) []byte {
	var b strings.Builder
	if title == "" {
		title = "교통 공지사항 모음"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "총 %d개의 공지사항\n\n", len(notices))
	fmt.Fprintf(&b, "생성일: %s\n", r.now().Format("2006-01-02"))

	for i, n := range notices {
		fmt.Fprintf(&b, "\n%s\n\n## %d. %s\n\n", divider, i+1, n.Title)
		r.writeMeta(&b, n)
		b.WriteString("\n")
		r.writeContent(&b, n)
	}
	r.writeFooter(&b, "")
	return []byte(b.String())
}

func (r *Renderer) writeMeta(b *strings.Builder, n notice.Notice) {
	b.WriteString("| 항목 | 값 |\n| --- | --- |\n")
	fmt.Fprintf(b, "| 공지번호 | %s |\n", n.ID)
	fmt.Fprintf(b, "| 출처 | %s |\n", siteLabel(n.Site))
	fmt.Fprintf(b, "| 카테고리 | %s |\n", n.Category)
	fmt.Fprintf(b, "| 작성일 | %s |\n", n.CreatedDate.Format("2006-01-02"))
	if n.ViewCount != nil {
		fmt.Fprintf(b, "| 조회수 | %d |\n", *n.ViewCount)
	}
	if n.Department != "" {
		fmt.Fprintf(b, "| 작성부서 | %s |\n", n.Department)
	}
	fmt.Fprintf(b, "| 첨부파일 | %s |\n", attachmentLabel(n.HasAttachment))
}

func (r *Renderer) writeContent(b *strings.Builder, n notice.Notice) {
	if n.Content == "" {
		b.WriteString("상세 내용이 없습니다.\n")
		return
	}
	b.WriteString(n.Content)
	b.WriteString("\n")
}

func (r *Renderer) writeFooter(b *strings.Builder, site notice.Site) {
	fmt.Fprintf(b, "\n%s\n\n문서 생성일시: %s\n", divider, r.now().Format("2006-01-02 15:04:05"))
	if cfg, ok := notice.SiteConfigs()[site]; ok {
		fmt.Fprintf(b, "출처: %s (%s)\n", cfg.DisplayName, cfg.BaseURL)
	}
}

func siteLabel(s notice.Site) string {
	if cfg, ok := notice.SiteConfigs()[s]; ok {
		return cfg.DisplayName
	}
	return string(s)
}

func attachmentLabel(has bool) string {
	if has {
		return "있음"
	}
	return "없음"
}
