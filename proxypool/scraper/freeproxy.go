package scraper

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/internal/shared/logger"
	"proxyharvest/proxypool/model"
)

const (
	tableSelector = "table#proxy_list"
	rowSelector   = "tbody tr"

	colIP        = 0
	colPort      = 1
	colProtocol  = 2
	colAnonymity = 6
)

// 表格第一列形如 document.write(Base64.decode("MTg1LjE2Mi4yMzEuMTA2"))
var quotedLiteral = regexp.MustCompile(`"(.*)"`)

// FreeProxyScraper 实现了 Scraper 接口，用于解析 free-proxy.cz 的列表页。
type FreeProxyScraper struct {
	src PageSource
}

// NewFreeProxyScraper creates a scraper reading pages from src.
func NewFreeProxyScraper(src PageSource) *FreeProxyScraper {
	return &FreeProxyScraper{src: src}
}

// Name 返回抓取器的名称。
func (s *FreeProxyScraper) Name() string {
	return "free-proxy.cz"
}

// Extract fetches one listing page and returns its proxy rows.
// Rows with at most one cell are headers or separators and are skipped. A page
// without the proxy table is an ErrParse failure, not an empty page.
func (s *FreeProxyScraper) Extract(ctx context.Context, pageURL string) ([]model.ProxyRecord, error) {
	l := logger.WithComponent("ProxyPool/Scraper")

	doc, err := Document(ctx, s.src, pageURL)
	if err != nil {
		return nil, err
	}

	table := doc.Find(tableSelector)
	if table.Length() == 0 {
		return nil, herrors.Parse("no proxy table on ", pageURL)
	}

	records := make([]model.ProxyRecord, 0)
	table.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= 1 {
			return
		}
		records = append(records, model.ProxyRecord{
			IP:        decodeIP(cellText(cells.Eq(colIP))),
			Port:      cellText(cells.Eq(colPort)),
			Protocol:  cellText(cells.Eq(colProtocol)),
			Anonymity: cellText(cells.Eq(colAnonymity)),
		})
	})

	l.Debug().Str("source", s.Name()).Str("url", pageURL).Int("count", len(records)).Msg("Page extracted.")
	return records, nil
}

// decodeIP base64-decodes the quoted literal inside an obfuscated cell.
// A cell without a literal, or with one that does not decode, gives "".
func decodeIP(cell string) string {
	literal := quotedLiteral.FindString(cell)
	if literal == "" {
		return ""
	}
	decoded, ok := decodeLenient(literal)
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(decoded))
}

// decodeLenient ignores every byte outside the base64 alphabet (quotes,
// whitespace, padding) and a dangling final sextet.
func decodeLenient(s string) ([]byte, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '+' || c == '/' {
			b.WriteByte(c)
		}
	}
	clean := b.String()
	if len(clean)%4 == 1 {
		clean = clean[:len(clean)-1]
	}
	decoded, err := base64.RawStdEncoding.DecodeString(clean)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
