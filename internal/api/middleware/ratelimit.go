package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/michalmalinowski87/photo-sub008/internal/api/models"
)

// RateLimitConfig is a fixed budget of requests per sliding window.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// UndoRateLimit applies per IP to the public undo link. Tokens are
	// unguessable; this keeps enumeration attempts slow and visible.
	UndoRateLimit = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}

	// DeletionRateLimit applies per account to the deletion endpoints.
	DeletionRateLimit = RateLimitConfig{RequestLimit: 20, WindowLength: time.Minute}

	// OpsRateLimit applies per account to the authenticated ops endpoints.
	OpsRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits by client address. Behind a proxy, run chi's RealIP
// middleware first.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, httprate.KeyByRealIP)
}

// RateLimitByAccount limits by authenticated account, so one account shares
// a budget across addresses. Unauthenticated requests are keyed by IP.
func RateLimitByAccount(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, func(r *http.Request) (string, error) {
		if accountID := GetAccountID(r.Context()); accountID != "" {
			return "account:" + accountID, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func limit(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(tooManyRequests(cfg.WindowLength)),
	)
}

// tooManyRequests writes a 429 problem. httprate does not expose when the
// window resets, so Retry-After is a full window.
func tooManyRequests(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "rate limit exceeded, try again later")
		problem.Instance = r.URL.Path

		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
