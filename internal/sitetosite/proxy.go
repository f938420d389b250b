package sitetosite

import (
	"net"
	"net/url"
	"strconv"
)

// HTTPProxy describes an HTTP proxy used by the HTTP transport mode.
type HTTPProxy struct {
	Host     string
	Port     int
	Username string
	Password string
}

// URL returns the proxy URL with credentials, or nil if no host is set.
func (p *HTTPProxy) URL() *url.URL {
	if p == nil || p.Host == "" {
		return nil
	}
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	u := &url.URL{Scheme: "http", Host: host}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// EffectiveProxy returns proxy only when it applies: the HTTP mode with a
// non-empty host. RAW transfers never go through the proxy.
func EffectiveProxy(protocol TransportProtocol, proxy *HTTPProxy) *HTTPProxy {
	if protocol == ProtocolRAW || proxy == nil || proxy.Host == "" {
		return nil
	}
	return proxy
}
