package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	h "membershipinitiation/internal/delivery/http/helpers"
	"membershipinitiation/internal/domain"
)

// RateLimit returns a wrapper that throttles requests per client address.
// Denied requests get 429 with a Retry-After header.
func RateLimit(limiter domain.RateLimiter) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := limiter.Allow("http:" + ClientAddr(r))
			if !ok {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeRateLimited, "too many requests")
				return
			}
			next(w, r)
		}
	}
}

// ClientAddr extracts the client address from the request, preferring the
// first entry of X-Forwarded-For when a proxy set it.
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
