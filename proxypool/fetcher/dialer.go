package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
	"h12.io/socks"

	herrors "proxyharvest/internal/shared/errors"
)

// proxyTransport builds a single-use transport that routes through proxyAddr.
//
// "https" proxies as published by listing sites are HTTP proxies that accept
// CONNECT, so they are dialed in plain HTTP like "http" ones.
func (f *Fetcher) proxyTransport(proxyAddr string) (*http.Transport, error) {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, herrors.Network("invalid proxy address ", proxyAddr).Base(err)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, herrors.Network("proxy address without host or port: ", proxyAddr)
	}

	dialer := &net.Dialer{Timeout: f.connectTimeout}
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: f.connectTimeout,
		DisableKeepAlives:   true,
	}

	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(&url.URL{Scheme: "http", Host: u.Host, User: u.User})
		transport.DialContext = dialer.DialContext

	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		d, err := proxy.SOCKS5("tcp", u.Host, auth, dialer)
		if err != nil {
			return nil, herrors.Network("failed to create SOCKS5 dialer for ", proxyAddr).Base(err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, herrors.Network("SOCKS5 dialer for ", proxyAddr, " does not support contexts")
		}
		transport.DialContext = cd.DialContext

	case "socks4", "socks4a":
		transport.DialContext = contextDial(socks.Dial(fmt.Sprintf("%s://%s?timeout=%s", scheme, u.Host, f.connectTimeout)))

	default:
		return nil, herrors.Network("unsupported proxy scheme ", u.Scheme, " in ", proxyAddr)
	}

	return transport, nil
}

type dialResult struct {
	conn net.Conn
	err  error
}

// contextDial adapts a dial func without context support. If ctx ends first the
// dial is abandoned and a connection that arrives later is closed.
func contextDial(dial func(network, addr string) (net.Conn, error)) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ch := make(chan dialResult, 1)
		go func() {
			conn, err := dial(network, addr)
			ch <- dialResult{conn, err}
		}()

		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			go func() {
				if r := <-ch; r.conn != nil {
					r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}
