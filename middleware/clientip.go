package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyTrust decides which peers may speak for the client through
// X-Forwarded-For. The zero value trusts nobody, so the header is ignored.
type ProxyTrust struct {
	prefixes []netip.Prefix
}

// NewProxyTrust parses trusted proxies given as CIDR ranges or single
// addresses.
func NewProxyTrust(proxies []string) (*ProxyTrust, error) {
	t := &ProxyTrust{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(p); err == nil {
			t.prefixes = append(t.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: not an address or CIDR", p)
		}
		t.prefixes = append(t.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return t, nil
}

func (t *ProxyTrust) trusts(ip string) bool {
	if t == nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the client behind r. X-Forwarded-For is
// read only when the socket peer is trusted, walking the hops from the right
// and stopping at the first untrusted one.
func (t *ProxyTrust) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !t.trusts(peer) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !t.trusts(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

// RequestContext is [RequestContext] with the client address resolved
// through t.
func (t *ProxyTrust) RequestContext(r *http.Request) context.Context {
	return requestContext(r, t.ClientIP(r))
}

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are
// ignored; use [ProxyTrust] behind a reverse proxy.
func ClientIP(r *http.Request) string {
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
