// Package metadata records who is calling: client IP and User-Agent end up in
// the access log line of every request.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"crm/pkg/requestcontext"
)

const maxUserAgentLength = 256

// ClientMetadata stores the client IP and a bounded User-Agent in the context.
// It must run before the request logger.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if len(ua) > maxUserAgentLength {
			ua = ua[:maxUserAgentLength]
		}
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the socket peer. Header values that are not IP addresses are skipped.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}

	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if ip, ok := parseIP(host); ok {
			return ip
		}
	}
	return "unknown"
}

func parseIP(raw string) (string, bool) {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(raw), "[]"))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
