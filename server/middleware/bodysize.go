package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

const defaultMaxBodySize = 1024 * 1024

// BodySizeLimit restricts request bodies to maxSize (e.g. "1MB", "512KB").
func BodySizeLimit(maxSize string) Middleware {
	size := parseSize(maxSize, defaultMaxBodySize)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, size)
			next.ServeHTTP(w, r)
		})
	}
}

// parseSize parses "10MB", "512KB", "1GB" or a plain byte count.
func parseSize(s string, defaultBytes int64) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultBytes
	}
	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = s[:len(s)-2]
	}
	var val int64
	if _, err := fmt.Sscanf(s, "%d", &val); err == nil && val > 0 {
		return val * multiplier
	}
	return defaultBytes
}
