package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go-auth-service/internal/event"
)

// ClientIPResolver decides which address a request came from. Forwarding headers
// are honoured only when the socket peer is one of the trusted proxies.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

func NewClientIPResolver(trusted []netip.Prefix) *ClientIPResolver {
	return &ClientIPResolver{trusted: trusted}
}

// Handler stores the resolved address on the request context for logging, rate
// limiting and audit events.
func (c *ClientIPResolver) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := c.Resolve(r)
		next.ServeHTTP(w, r.WithContext(event.WithClientIP(r.Context(), ip)))
	})
}

func (c *ClientIPResolver) Resolve(r *http.Request) string {
	peer := peerAddress(r)
	if !c.isTrusted(peer) {
		return peer
	}

	// walk right to left: the rightmost untrusted hop is the first one a
	// trusted proxy actually observed
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !c.isTrusted(hop) || i == 0 {
				return hop
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if _, err := netip.ParseAddr(realIP); err == nil {
			return realIP
		}
	}

	return peer
}

func (c *ClientIPResolver) isTrusted(ip string) bool {
	if len(c.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address resolved by ClientIPResolver.Handler, falling back
// to the socket peer. Forwarding headers are never read here.
func ClientIP(r *http.Request) string {
	if ip := event.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return peerAddress(r)
}

func peerAddress(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}

	host, _, err := net.SplitHostPort(remote)
	if err == nil && host != "" {
		return host
	}

	return remote
}
