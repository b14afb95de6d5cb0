// Package handler provides HTTP handlers for the LoopRoute API.
package handler

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/looproute/looproute/internal/api/models"
	"github.com/looproute/looproute/internal/api/response"
	"github.com/looproute/looproute/internal/provider/resilience"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// DependencyCheck probes a backing service such as the database or cache.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsHandlerConfig holds configuration for the ops endpoints.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	// Registry reports provider health (optional).
	Registry *resilience.Registry

	// Checks are run by the readiness and status endpoints.
	Checks []DependencyCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	checks    []DependencyCheck
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		checks:    cfg.Checks,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health. It reports liveness only and never
// touches a dependency.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]string{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. Any failing dependency check makes
// the instance unready with a 503. Provider circuits do not affect readiness
// since restarting the instance cannot fix an upstream outage.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	}
	status := http.StatusOK
	for _, s := range h.runChecks(r.Context()) {
		if s.Status != models.HealthStatusFail {
			continue
		}
		if health.Details == nil {
			health.Details = map[string]string{}
		}
		health.Status = models.HealthStatusFail
		health.Details[s.Name] = *s.Detail
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Version:    h.version,
		Subsystems: h.runChecks(r.Context()),
		Providers:  h.providerStatuses(),
	}

	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
		}
	}
	if status.Status == models.HealthStatusOK {
		for _, p := range status.Providers {
			if p.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
				break
			}
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

// runChecks runs every dependency check concurrently, each under readinessTimeout.
// Results keep the configured order.
func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	statuses := make([]models.SubsystemStatus, len(h.checks))

	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
			defer cancel()

			s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
			if err := c.Check(checkCtx); err != nil {
				detail := err.Error()
				s.Status = models.HealthStatusFail
				s.Detail = &detail
			}
			statuses[i] = s
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

var providerStatusMap = map[resilience.Status]models.HealthStatus{
	resilience.StatusOK:       models.HealthStatusOK,
	resilience.StatusDegraded: models.HealthStatusDegraded,
	resilience.StatusFail:     models.HealthStatusFail,
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.registry == nil {
		return []models.ProviderStatus{}
	}

	snapshot := h.registry.Snapshot()
	statuses := make([]models.ProviderStatus, 0, len(snapshot))
	for _, ph := range snapshot {
		ps := models.ProviderStatus{
			Provider:            ph.Name,
			Status:              providerStatusMap[ph.Status()],
			CircuitState:        ph.CircuitState.String(),
			ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
			StateChangedAt:      timestampPtr(ph.StateChangedAt),
			LastSuccessAt:       timestampPtr(ph.LastSuccessAt),
			LastFailureAt:       timestampPtr(ph.LastFailureAt),
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		statuses = append(statuses, ps)
	}
	return statuses
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	ts := models.Timestamp(*t)
	return &ts
}
