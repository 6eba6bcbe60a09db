package pipeline

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller address: the first X-Forwarded-For entry,
// then X-Real-IP, then the peer address. Forwarding headers are trusted as
// sent; the server is expected to sit behind a proxy that sets them.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
