package scraper

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/proxypool/model"
)

// PageSource 接口定义了获取页面原始内容的行为。
// fetcher.Fetcher 与 cache.Cache 都实现了它。
type PageSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Scraper 接口定义了从一个列表页抽取代理记录的行为。
// 实现者只负责抓取和解析，不进行验证。
type Scraper interface {
	Extract(ctx context.Context, pageURL string) ([]model.ProxyRecord, error)

	// Name 返回抓取器的名称，用于日志记录。
	Name() string
}

// Document fetches pageURL from src and parses it for selector queries.
func Document(ctx context.Context, src PageSource, pageURL string) (*goquery.Document, error) {
	body, err := src.Fetch(ctx, pageURL)
	if err != nil {
		if herrors.Is(err, herrors.ErrNetwork) || herrors.Is(err, herrors.ErrCacheStorage) {
			return nil, err
		}
		return nil, herrors.Network("fetch ", pageURL).Base(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, herrors.Parse("parse HTML of ", pageURL).Base(err)
	}
	return doc, nil
}

// cellText returns the text of a selection with whitespace runs collapsed.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
