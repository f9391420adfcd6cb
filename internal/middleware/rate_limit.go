package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/tasktrack/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// IPConfig decides when forwarding headers are trusted for the client key
	IPConfig *pkghttp.IPConfig
	// Counter shares counts across instances; nil keeps them in process memory
	Counter httprate.LimitCounter
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints (10 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 10,
		Window:   time.Minute,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// The client IP comes from ExtractClientIP so spoofed X-Forwarded-For headers
// from untrusted peers cannot rotate the key.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.Requests <= 0 {
		config.Requests = DefaultAuthRateLimit().Requests
	}
	if config.Window <= 0 {
		config.Window = DefaultAuthRateLimit().Window
	}

	opts := []httprate.Option{
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		}),
	}
	if config.Counter != nil {
		opts = append(opts, httprate.WithLimitCounter(config.Counter))
	}

	return httprate.Limit(config.Requests, config.Window, opts...)
}
