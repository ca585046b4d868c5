package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/michalmalinowski87/photo-sub008/internal/api/middleware"
)

func TestRequestID_GeneratesNewID(t *testing.T) {
	var fromContext string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	responseID := w.Header().Get(middleware.RequestIDHeader)
	assert.True(t, strings.HasPrefix(responseID, "req_"))
	assert.Equal(t, responseID, fromContext)
}

func TestRequestID_UpstreamID(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		kept     bool
	}{
		{"well formed", "lb-7f3a.91_x", true},
		{"too long", strings.Repeat("a", 65), false},
		{"control characters", "abc\ninjected", false},
		{"spaces", "abc def", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.RequestID(http.HandlerFunc(okHandler))

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set(middleware.RequestIDHeader, tt.upstream)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			got := w.Header().Get(middleware.RequestIDHeader)
			if tt.kept {
				assert.Equal(t, tt.upstream, got)
			} else {
				assert.True(t, strings.HasPrefix(got, "req_"), got)
			}
		})
	}
}

func TestRequestID_UniqueIDs(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(okHandler))
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		id := w.Header().Get(middleware.RequestIDHeader)
		assert.False(t, ids[id], "duplicate request ID generated: %s", id)
		ids[id] = true
	}
}
