// Package handler provides HTTP handlers for the gallery account API.
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/michalmalinowski87/photo-sub008/internal/api/models"
	"github.com/michalmalinowski87/photo-sub008/internal/api/response"
	"github.com/michalmalinowski87/photo-sub008/internal/provider/resilience"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck is one dependency probed by the readiness endpoint.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsConfig holds configuration for the ops handler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Checks    []ReadinessCheck
	Registry  *resilience.Registry
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []ReadinessCheck
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		checks:    cfg.Checks,
		registry:  cfg.Registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - probes every registered
// dependency concurrently and returns 503 if any of them fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	results := make([]models.CheckStatus, len(h.checks))
	var wg sync.WaitGroup
	for i, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = models.CheckStatus{Name: check.Name, Status: models.HealthStatusOK}
			if err := check.Check(ctx); err != nil {
				results[i].Status = models.HealthStatusFail
				results[i].Detail = err.Error()
			}
		}()
	}
	wg.Wait()

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(time.Now()),
		Checks: results,
	}
	status := http.StatusOK
	for _, c := range results {
		if c.Status == models.HealthStatusFail {
			health.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
	}

	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - circuit breaker state of the
// scheduler and mailer. An open breaker degrades side effects only, so the
// overall status never goes beyond DEGRADED.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.NewTimestamp(time.Now()),
		Dependencies: []models.DependencyStatus{},
	}

	if h.registry != nil {
		for _, dep := range h.registry.GetAllHealth() {
			ds := models.DependencyStatus{
				Name:                dep.Name,
				Status:              models.HealthStatusOK,
				CircuitState:        dep.CircuitState.String(),
				ConsecutiveFailures: dep.Counts.ConsecutiveFailures,
				LastSuccessAt:       models.TimestampPtr(dep.LastSuccessAt),
				LastFailureAt:       models.TimestampPtr(dep.LastFailureAt),
				LastError:           dep.LastError,
			}
			switch {
			case dep.IsUnhealthy():
				ds.Status = models.HealthStatusFail
				status.Status = models.HealthStatusDegraded
			case dep.IsDegraded():
				ds.Status = models.HealthStatusDegraded
				status.Status = models.HealthStatusDegraded
			}
			status.Dependencies = append(status.Dependencies, ds)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}
