package model

import (
	"net"
	"strings"
)

// ProxyRecord 是从列表页表格中解析出的一条代理记录。
// 解析后不再修改; 除字段值外没有其他身份标识。
type ProxyRecord struct {
	IP        string `json:"ip"`
	Port      string `json:"port"`
	Protocol  string `json:"protocol"`  // 列表页原文, e.g. "HTTP", "SOCKS5"
	Anonymity string `json:"anonymity"` // 列表页原文, e.g. "High anonymity"
}

// IsZero reports whether the record carries no data at all.
func (p ProxyRecord) IsZero() bool {
	return p == ProxyRecord{}
}

// IsCandidate reports whether the record has enough data to be probed.
// A record without a host would make the proxy dialer target the local machine.
func (p ProxyRecord) IsCandidate() bool {
	return strings.TrimSpace(p.IP) != "" && strings.TrimSpace(p.Port) != ""
}

// Key identifies the endpoint for de-duplication: "ip:port", whatever the protocol.
func (p ProxyRecord) Key() string {
	return strings.ToLower(strings.TrimSpace(p.IP)) + ":" + strings.TrimSpace(p.Port)
}

// Scheme returns the lower-cased protocol, defaulting to http.
func (p ProxyRecord) Scheme() string {
	scheme := strings.ToLower(strings.TrimSpace(p.Protocol))
	if scheme == "" {
		return "http"
	}
	return scheme
}

// Address returns "ip:port".
func (p ProxyRecord) Address() string {
	return net.JoinHostPort(p.IP, p.Port)
}

// URL returns the proxy address in "protocol://ip:port" form.
func (p ProxyRecord) URL() string {
	return p.Scheme() + "://" + p.Address()
}

// String implements fmt.Stringer.
func (p ProxyRecord) String() string {
	return p.Address() + " " + p.Protocol + " " + p.Anonymity
}
