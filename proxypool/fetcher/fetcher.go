package fetcher

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/internal/shared/logger"
)

// Default timeouts. Connect and overall bound each proxy-routed request, page bounds a direct fetch.
const (
	DefaultConnectTimeout = 6 * time.Second
	DefaultTimeout        = 9 * time.Second
	DefaultPageTimeout    = 20 * time.Second
)

// DefaultHeaders is the fixed header set sent with every request.
var DefaultHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "ru,ru-RU;q=0.9,en;q=0.8",
	"Connection":      "keep-alive",
	"Content-Type":    "application/json; charset=UTF-8",
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Accept-Encoding": "*",
}

// Options configures a Fetcher. Zero values fall back to the defaults above.
type Options struct {
	ConnectTimeout    time.Duration // proxy-routed requests: dial timeout
	Timeout           time.Duration // proxy-routed requests: overall timeout
	PageTimeout       time.Duration // direct page requests: overall timeout
	RequestsPerSecond float64       // direct page requests; 0 disables the limiter
	Headers           map[string]string
}

// Response is the outcome of a proxy-routed request. The status is not classified here.
type Response struct {
	StatusCode int
	Body       []byte
}

// Fetcher 负责发出 HTTP 请求, 可选地经由代理转发。
// TLS 证书校验被关闭。
type Fetcher struct {
	headers        map[string]string
	connectTimeout time.Duration
	timeout        time.Duration
	pageTimeout    time.Duration
	limiter        *rate.Limiter
	transport      *http.Transport
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultPageTimeout
	}
	if opts.Headers == nil {
		opts.Headers = DefaultHeaders
	}

	f := &Fetcher{
		headers:        opts.Headers,
		connectTimeout: opts.ConnectTimeout,
		timeout:        opts.Timeout,
		pageTimeout:    opts.PageTimeout,
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   opts.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
			TLSHandshakeTimeout: opts.ConnectTimeout,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// Fetch retrieves the raw body of pageURL over a direct connection.
// Any HTTP status is returned as a body; only transport failures are errors.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, herrors.Network("rate limiter wait for ", pageURL).Base(err)
		}
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.StdlibContext(ctx),
	)
	c.WithTransport(f.transport)
	c.SetRequestTimeout(f.pageTimeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
	})

	l := logger.WithComponent("ProxyPool/Fetcher")
	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		l.Debug().Str("url", pageURL).Int("status_code", r.StatusCode).Int("bytes", len(r.Body)).Msg("Page fetched.")
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, herrors.Network("fetch ", pageURL).Base(err)
	}
	if body == nil {
		body = []byte{}
	}
	return body, nil
}

// FetchVia retrieves targetURL through the proxy at proxyAddr ("scheme://host:port"),
// following redirects, bounded by the connect and overall timeouts.
func (f *Fetcher) FetchVia(ctx context.Context, targetURL, proxyAddr string) (*Response, error) {
	transport, err := f.proxyTransport(proxyAddr)
	if err != nil {
		return nil, err
	}
	defer transport.CloseIdleConnections()

	client := resty.NewWithClient(&http.Client{
		Transport: transport,
		Timeout:   f.timeout,
	})

	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(f.headers).
		Get(targetURL)
	if err != nil {
		return nil, herrors.Network("fetch ", targetURL, " via ", proxyAddr).Base(err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
	}, nil
}

// Probe issues a proxy-routed GET and returns only the status code.
func (f *Fetcher) Probe(ctx context.Context, targetURL, proxyAddr string) (int, error) {
	resp, err := f.FetchVia(ctx, targetURL, proxyAddr)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}
