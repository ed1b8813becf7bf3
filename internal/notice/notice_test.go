package notice

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(d string) time.Time {
	t, _ := time.Parse("2006-01-02", d)
	return t
}

func TestLess_Ordering(t *testing.T) {
	t.Parallel()
	notices := []Notice{
		{Site: SiteTOPIS, ID: "9", CreatedDate: day("2025-01-09")},
		{Site: SiteTOPIS, ID: "100", CreatedDate: day("2025-01-10")},
		{Site: SiteTOPIS, ID: "99", CreatedDate: day("2025-01-10")},
		{Site: SiteTOPIS, ID: "101", CreatedDate: day("2025-01-11")},
	}
	sort.Slice(notices, func(i, j int) bool { return Less(notices[i], notices[j]) })

	var ids []string
	for _, n := range notices {
		ids = append(ids, n.ID)
	}
	// Newest first; numeric ids compare numerically on equal dates.
	require.Equal(t, []string{"101", "100", "99", "9"}, ids)
}

func TestLess_NonNumericIDs(t *testing.T) {
	t.Parallel()
	a := Notice{ID: "b-2", CreatedDate: day("2025-01-10")}
	b := Notice{ID: "a-9", CreatedDate: day("2025-01-10")}
	require.True(t, Less(a, b))
	require.False(t, Less(b, a))
}

func TestKey(t *testing.T) {
	t.Parallel()
	n := Notice{Site: SiteICTR, ID: "5501"}
	require.Equal(t, "ictr/5501", n.Key())
}

func TestParseSite(t *testing.T) {
	t.Parallel()
	s, err := ParseSite("topis")
	require.NoError(t, err)
	require.Equal(t, SiteTOPIS, s)

	_, err = ParseSite("busan")
	require.Error(t, err)
}

func TestCrawlRequestValidate(t *testing.T) {
	t.Parallel()
	valid := CrawlRequest{
		Site:      SiteTOPIS,
		StartDate: day("2025-01-01"),
		EndDate:   day("2025-01-31"),
		MaxPages:  3,
	}
	require.NoError(t, valid.Validate())

	badSite := valid
	badSite.Site = "unknown"
	require.Error(t, badSite.Validate())

	inverted := valid
	inverted.StartDate, inverted.EndDate = inverted.EndDate, inverted.StartDate
	require.Error(t, inverted.Validate())

	missing := valid
	missing.StartDate = time.Time{}
	require.Error(t, missing.Validate())

	noPages := valid
	noPages.MaxPages = 0
	require.Error(t, noPages.Validate())

	sameDay := valid
	sameDay.EndDate = sameDay.StartDate
	require.NoError(t, sameDay.Validate(), "single-day windows are legal")
}

func TestInRange(t *testing.T) {
	t.Parallel()
	req := CrawlRequest{StartDate: day("2025-01-10"), EndDate: day("2025-01-20")}
	require.True(t, req.InRange(day("2025-01-10")), "window is inclusive at both ends")
	require.True(t, req.InRange(day("2025-01-20")))
	require.False(t, req.InRange(day("2025-01-09")))
	require.False(t, req.InRange(day("2025-01-21")))
}

func TestExtra(t *testing.T) {
	t.Parallel()
	req := CrawlRequest{Extras: map[string]string{"keyword": "지하철", "empty": ""}}
	require.Equal(t, "지하철", req.Extra("keyword", ""))
	require.Equal(t, "title", req.Extra("search_type", "title"))
	require.Equal(t, "title", req.Extra("empty", "title"), "empty values fall back to the default")
}
