package model

import (
	"sync"
	"time"
)

// HealthStatus is a provider's three-state availability.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

const (
	degradedFailureThreshold  = 2
	unhealthyFailureThreshold = 4
	failureWindow             = 60 * time.Second
)

// HealthTracker derives a provider's status from its recent
// success/failure pattern. A single success restores healthy.
type HealthTracker struct {
	mu                  sync.Mutex
	status              HealthStatus
	consecutiveFailures int
	windowStart         time.Time
	lastFailure         time.Time
	now                 func() time.Time
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		status: Healthy,
		now:    time.Now,
	}
}

// RecordSuccess restores the provider to healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.status = Healthy
	h.consecutiveFailures = 0
	h.windowStart = time.Time{}
}

// RecordFailure advances the status toward unhealthy. Failures outside the
// rolling window reset the count.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.windowStart.IsZero() || now.Sub(h.windowStart) > failureWindow {
		h.windowStart = now
		h.consecutiveFailures = 0
	}

	h.consecutiveFailures++
	h.lastFailure = now

	switch {
	case h.consecutiveFailures >= unhealthyFailureThreshold:
		h.status = Unhealthy
	case h.consecutiveFailures >= degradedFailureThreshold:
		h.status = Degraded
	}
}

// Status returns the current status.
func (h *HealthTracker) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Snapshot returns status plus failure accounting for introspection.
func (h *HealthTracker) Snapshot() (HealthStatus, int, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.consecutiveFailures, h.lastFailure
}
