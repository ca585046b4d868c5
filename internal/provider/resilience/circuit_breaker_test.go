package resilience_test

import (
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"

	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
)

func TestTripOnFailureRatio(t *testing.T) {
	trip := resilience.TripOnFailureRatio(5, 0.5)

	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"no requests", gobreaker.Counts{}, false},
		{"too few requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"below ratio", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"at ratio", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"all failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trip(tt.counts))
		})
	}
}

func TestTripOnConsecutiveFailures(t *testing.T) {
	trip := resilience.TripOnConsecutiveFailures(3)

	assert.False(t, trip(gobreaker.Counts{ConsecutiveFailures: 2, TotalFailures: 10}))
	assert.True(t, trip(gobreaker.Counts{ConsecutiveFailures: 3}))
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("mailer")

	assert.Equal(t, "mailer", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.NotNil(t, cfg.ReadyToTrip)
	assert.Nil(t, cfg.IsSuccessful)

	cb := resilience.NewCircuitBreaker[struct{}](cfg)
	assert.Equal(t, "mailer", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
