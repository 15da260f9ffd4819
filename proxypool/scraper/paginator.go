package scraper

import (
	"context"
	"strconv"

	"proxyharvest/internal/shared/logger"
)

const (
	// DefaultMaxPages caps how many listing pages are harvested.
	DefaultMaxPages = 5

	paginatorSelector = ".paginator a:nth-last-of-type(2)"
	pagePathPrefix    = "proxylist/main/"
)

// Paginator 通过列表第一页的分页链接确定需要抓取的页数。
type Paginator struct {
	src      PageSource
	maxPages int
}

// NewPaginator creates a Paginator; maxPages <= 0 means DefaultMaxPages.
func NewPaginator(src PageSource, maxPages int) *Paginator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Paginator{src: src, maxPages: maxPages}
}

// ResolveMaxPage reads the second-to-last paginator link of baseURL (the last
// one is "next") and returns its number clamped to [1, maxPages]. A page
// without paginator links is a single-page listing.
func (p *Paginator) ResolveMaxPage(ctx context.Context, baseURL string) (int, error) {
	l := logger.WithComponent("ProxyPool/Paginator")

	doc, err := Document(ctx, p.src, baseURL)
	if err != nil {
		return 0, err
	}

	n := 0
	if link := doc.Find(paginatorSelector).First(); link.Length() > 0 {
		n = leadingInt(cellText(link))
	}

	pages := clamp(n, 1, p.maxPages)
	l.Debug().Str("url", baseURL).Int("paginator", n).Int("pages", pages).Msg("Pagination resolved.")
	return pages, nil
}

// PageURLs builds the listing URLs for pages 1..n. Page 1 is baseURL itself.
func PageURLs(baseURL string, n int) []string {
	urls := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if i == 1 {
			urls = append(urls, baseURL)
			continue
		}
		urls = append(urls, baseURL+pagePathPrefix+strconv.Itoa(i))
	}
	return urls
}

// leadingInt parses an optional sign and the digits that follow it; anything
// else yields 0.
func leadingInt(s string) int {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
