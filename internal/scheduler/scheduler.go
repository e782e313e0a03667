package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/harunnryd/kangae/internal/config"
	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/model"
	"github.com/harunnryd/kangae/internal/token"
	"github.com/harunnryd/kangae/internal/tool"
)

// Scheduler runs the maintenance cadence off the request path: periodic
// cache/memory/thinking/optimization sweeps, a provider health sweep, and
// token-metrics snapshots. It never blocks requests.
type Scheduler struct {
	service  *tool.Service
	fallback *model.Fallback
	history  *token.History
	cron     *cron.Cron

	mu      sync.Mutex
	running bool

	maintenanceSchedule string
	healthSweepSchedule string
}

func New(service *tool.Service, fallback *model.Fallback, history *token.History, cfg config.SchedulerConfig) *Scheduler {
	maintenance := cfg.MaintenanceSchedule
	if maintenance == "" {
		maintenance = config.DefaultSchedulerMaintenanceCron
	}
	healthSweep := cfg.HealthSweepSchedule
	if healthSweep == "" {
		healthSweep = config.DefaultSchedulerHealthSweepCron
	}

	return &Scheduler{
		service:             service,
		fallback:            fallback,
		history:             history,
		cron:                cron.New(),
		maintenanceSchedule: maintenance,
		healthSweepSchedule: healthSweep,
	}
}

// Start registers the jobs and begins the cadence. Idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.maintenanceSchedule, func() { s.runMaintenance(ctx) }); err != nil {
		return errors.Wrap(err, "register maintenance job")
	}
	if _, err := s.cron.AddFunc(s.healthSweepSchedule, func() { s.runHealthSweep() }); err != nil {
		return errors.Wrap(err, "register health sweep job")
	}

	s.cron.Start()
	s.running = true
	slog.Info("Scheduler started",
		"maintenance", s.maintenanceSchedule, "health_sweep", s.healthSweepSchedule)
	return nil
}

// Stop halts the cadence and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runMaintenance sweeps every system and snapshots token metrics.
func (s *Scheduler) runMaintenance(ctx context.Context) {
	removed, err := s.service.PerformMaintenance(ctx, tool.MaintenanceInput{Systems: []string{"all"}})
	if err != nil {
		slog.Error("Scheduled maintenance failed", "error", err)
		return
	}
	slog.Info("Scheduled maintenance complete", "removed", removed)

	if s.history != nil {
		if err := s.history.Save(); err != nil {
			slog.Warn("Token metrics snapshot failed", "error", err)
		}
	}
}

// runHealthSweep logs degraded or unhealthy providers so operators see
// failover pressure before requests do.
func (s *Scheduler) runHealthSweep() {
	if s.fallback == nil {
		return
	}
	for _, descriptor := range s.fallback.Descriptors() {
		if descriptor.Health == model.Healthy {
			continue
		}
		slog.Warn("Provider not healthy",
			"provider", descriptor.Name,
			"health", descriptor.Health,
			"consecutive_failures", descriptor.ConsecutiveFailures,
			"last_failure", descriptor.LastFailure)
	}
}
