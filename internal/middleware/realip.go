package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// =============================================================================
// Real IP
// =============================================================================

// RealIPMiddleware rewrites r.RemoteAddr to the client address carried in
// X-Forwarded-For or X-Real-IP, but only when the direct peer is a trusted
// proxy. With no trusted proxies the headers are ignored.
type RealIPMiddleware struct {
	trusted []netip.Prefix
}

// NewRealIPMiddleware parses trusted proxy addresses or CIDR ranges.
func NewRealIPMiddleware(trustedProxies []string) (*RealIPMiddleware, error) {
	m := &RealIPMiddleware{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			m.trusted = append(m.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		m.trusted = append(m.trusted, prefix.Masked())
	}
	return m, nil
}

// Handler wraps next.
func (m *RealIPMiddleware) Handler(next http.Handler) http.Handler {
	if len(m.trusted) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := m.clientIP(r); ip != "" {
			r.RemoteAddr = net.JoinHostPort(ip, "0")
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the forwarded client address, or "" to keep RemoteAddr.
// X-Forwarded-For is read right to left, skipping trusted hops, so a
// client cannot spoof it by prepending entries.
func (m *RealIPMiddleware) clientIP(r *http.Request) string {
	if !m.isTrusted(getClientIP(r)) {
		return ""
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		client := ""
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			client = hop
			if !m.isTrusted(hop) {
				break
			}
		}
		if client != "" {
			return client
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return ""
}

func (m *RealIPMiddleware) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
