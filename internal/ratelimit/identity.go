package ratelimit

import (
	"net/http"
	"strings"
)

// ClientIdentity resolves the rate-limit identity from request metadata.
// Priority: first X-Forwarded-For entry, then X-Real-IP, then the CDN header,
// else a constant sentinel so anonymous traffic still shares one bucket.
func ClientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return "unknown"
}
