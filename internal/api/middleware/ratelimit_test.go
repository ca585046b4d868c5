package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/michalmalinowski87/photo-sub008/internal/api/middleware"
)

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute}
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(http.HandlerFunc(okHandler)))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/account-deletion/undo", http.NoBody)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send("10.0.0.1:12345").Code, "request %d should be allowed", i+1)
	}

	rec := send("10.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too-many-requests")
	assert.Contains(t, rec.Body.String(), "/v1/account-deletion/undo")

	// Other clients keep their own budget
	assert.Equal(t, http.StatusOK, send("10.0.0.2:12345").Code)
}

func TestRateLimitByAccount_KeysByAccount(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	limiter := middleware.RateLimitByAccount(cfg)(http.HandlerFunc(okHandler))

	send := func(accountID, ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/me/deletion", http.NoBody)
		req.RemoteAddr = ip
		if accountID != "" {
			req = req.WithContext(middleware.WithAccountID(req.Context(), accountID))
		}
		rec := httptest.NewRecorder()
		limiter.ServeHTTP(rec, req)
		return rec.Code
	}

	// Same account from two addresses shares one budget
	assert.Equal(t, http.StatusOK, send("acc_1", "192.168.1.1:1"))
	assert.Equal(t, http.StatusOK, send("acc_1", "192.168.1.2:1"))
	assert.Equal(t, http.StatusTooManyRequests, send("acc_1", "192.168.1.3:1"))

	assert.Equal(t, http.StatusOK, send("acc_2", "192.168.1.1:1"))

	// Unauthenticated requests fall back to the IP
	assert.Equal(t, http.StatusOK, send("", "192.168.9.9:1"))
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 10, middleware.UndoRateLimit.RequestLimit)
	assert.Equal(t, 20, middleware.DeletionRateLimit.RequestLimit)
	assert.Equal(t, 100, middleware.OpsRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.UndoRateLimit.WindowLength)
}
