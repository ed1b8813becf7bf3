package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/transitops/notice-crawler/internal/notice"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func sampleNotice() notice.Notice {
	views := 1234
	return notice.Notice{
		Site:          notice.SiteTOPIS,
		ID:            "12345",
		Title:         "올림픽대로 공사 안내",
		Category:      "통제안내",
		CreatedDate:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		ViewCount:     &views,
		HasAttachment: true,
		Content:       "1월 20일부터 올림픽대로 일부 구간이 통제됩니다.",
	}
}

func TestRenderOne(t *testing.T) {
	t.Parallel()
	doc := string(NewRendererAt(fixedClock()).RenderOne(sampleNotice()))

	require.True(t, strings.HasPrefix(doc, "# 올림픽대로 공사 안내\n"))
	require.Contains(t, doc, "| 공지번호 | 12345 |")
	require.Contains(t, doc, "| 조회수 | 1234 |")
	require.Contains(t, doc, "| 첨부파일 | 있음 |")
	require.Contains(t, doc, "## 내용")
	require.Contains(t, doc, "통제됩니다.")
	require.Contains(t, doc, "문서 생성일시: 2025-01-15 09:30:00")
	require.Contains(t, doc, "topis.seoul.go.kr")
}

func TestRenderOne_OptionalFields(t *testing.T) {
	t.Parallel()
	n := notice.Notice{
		Site:        notice.SiteICTR,
		ID:          "5501",
		Title:       "운행시간 조정",
		Category:    "기타안내",
		CreatedDate: time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
		Department:  "운영지원처",
	}
	doc := string(NewRendererAt(fixedClock()).RenderOne(n))

	require.NotContains(t, doc, "조회수", "absent view count stays out of the table")
	require.Contains(t, doc, "| 작성부서 | 운영지원처 |")
	require.Contains(t, doc, "| 첨부파일 | 없음 |")
	require.Contains(t, doc, "상세 내용이 없습니다.")
}

func TestRenderBatch(t *testing.T) {
	t.Parallel()
	second := sampleNotice()
	second.ID = "12344"
	second.Title = "간선버스 노선 변경"
	doc := string(NewRendererAt(fixedClock()).RenderBatch("", []notice.Notice{sampleNotice(), second}))

	require.True(t, strings.HasPrefix(doc, "# 교통 공지사항 모음\n"))
	require.Contains(t, doc, "총 2개의 공지사항")
	require.Contains(t, doc, "생성일: 2025-01-15")
	require.Contains(t, doc, "## 1. 올림픽대로 공사 안내")
	require.Contains(t, doc, "## 2. 간선버스 노선 변경")
	require.Less(t,
		strings.Index(doc, "## 1."), strings.Index(doc, "## 2."),
		"sections keep the batch order")
}

func TestRenderBatch_CustomTitle(t *testing.T) {
	t.Parallel()
	doc := string(NewRendererAt(fixedClock()).RenderBatch("1월 둘째 주 공지", []notice.Notice{sampleNotice()}))
	require.True(t, strings.HasPrefix(doc, "# 1월 둘째 주 공지\n"))
}
