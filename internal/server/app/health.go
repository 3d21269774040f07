// Package app holds server-side services that sit between the HTTP layer and
// the domain packages.
package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	apperrors "lhtl/internal/errors"
)

// HealthStatus is the state of one component.
type HealthStatus string

const (
	HealthStatusReady    HealthStatus = "ready"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDisabled HealthStatus = "disabled"
	HealthStatusError    HealthStatus = "error"
)

// ComponentHealth reports one component.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthProbe checks one component.
type HealthProbe interface {
	Check(ctx context.Context) ComponentHealth
}

// HealthChecker aggregates health probes.
type HealthChecker struct {
	mu     sync.RWMutex
	probes []HealthProbe
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker(probes ...HealthProbe) *HealthChecker {
	return &HealthChecker{probes: append([]HealthProbe(nil), probes...)}
}

// RegisterProbe adds a probe.
func (h *HealthChecker) RegisterProbe(probe HealthProbe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe)
}

// CheckAll runs every probe in registration order.
func (h *HealthChecker) CheckAll(ctx context.Context) []ComponentHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(h.probes))
	for _, probe := range h.probes {
		results = append(results, probe.Check(ctx))
	}
	return results
}

// Overall folds component states: any error is "error", any degraded
// component makes the whole "degraded", disabled components are ignored.
func Overall(components []ComponentHealth) HealthStatus {
	status := HealthStatusReady
	for _, c := range components {
		switch c.Status {
		case HealthStatusError:
			return HealthStatusError
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// StorageProbe checks that the data and asset directories are usable.
type StorageProbe struct {
	DataFile string
	AssetDir string
}

// Check stats both directories.
func (p StorageProbe) Check(context.Context) ComponentHealth {
	for _, dir := range []string{filepath.Dir(p.DataFile), p.AssetDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return ComponentHealth{
				Name:    "storage",
				Status:  HealthStatusError,
				Message: "storage directory unavailable",
			}
		}
	}
	return ComponentHealth{Name: "storage", Status: HealthStatusReady}
}

// AnalysisProbe reports whether the AI collaborator is configured and, when
// a breaker guards it, whether the upstream is currently reachable.
type AnalysisProbe struct {
	Provider   string
	Configured bool
	Breaker    *apperrors.CircuitBreaker
}

// Check reports disabled when no service was built and degraded while the
// breaker is open.
func (p AnalysisProbe) Check(context.Context) ComponentHealth {
	if !p.Configured {
		return ComponentHealth{
			Name:    "analysis",
			Status:  HealthStatusDisabled,
			Message: "AI service is not configured",
		}
	}
	state := p.Breaker.State()
	details := map[string]any{"provider": p.Provider, "circuit": state.String()}
	if state == apperrors.StateOpen {
		return ComponentHealth{
			Name:    "analysis",
			Status:  HealthStatusDegraded,
			Message: "upstream failing, calls rejected",
			Details: details,
		}
	}
	return ComponentHealth{
		Name:    "analysis",
		Status:  HealthStatusReady,
		Details: details,
	}
}
