package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/usermgmt/internal/auth"
	pkghttp "github.com/BradenHooton/usermgmt/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPResolver picks the client address. nil uses the direct peer.
	IPResolver *pkghttp.ClientIPResolver
}

// RateLimitByIP limits requests per client IP. It protects a single node
// only; counters are not shared between instances.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return config.IPResolver.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

// RateLimitByAccount limits authenticated requests per account, falling
// back to the client IP when no claims are present.
func RateLimitByAccount(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil {
				return "account:" + claims.AccountID(), nil
			}
			return "ip:" + config.IPResolver.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Too many requests")
}
