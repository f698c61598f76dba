package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"correspondence/pkg/requestcontext"
)

// ClientMetadata extracts client IP and User-Agent from the request and adds
// them, plus a parsed "browser/os" summary, to the context. Apply early.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), raw, DescribeUserAgent(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeUserAgent condenses a User-Agent header to "browser/os", "bot/<name>"
// or "" when the header is empty.
func DescribeUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if ua.Bot() {
		return "bot/" + name
	}
	os := ua.OS()
	if os == "" {
		os = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return name + "/" + os
}

// ClientIPFromRequest extracts the client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first entry is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
