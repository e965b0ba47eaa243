package health

import (
	"context"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/scheduler"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

type Transport interface {
	Ready() bool
	ActiveConnections() []string
	PruneStale(ctx context.Context) error
}

type Provisioning interface {
	IsProvisioned() bool
}

// Monitor is the part of the facade the ticks drive.
type Monitor interface {
	ReconcileConnections(active []string)
	TransportReady()
	RefreshNodeStorage()
}

type Settings struct {
	StartDelay     time.Duration
	StatusInterval time.Duration
	StaleInterval  time.Duration
}

// Scheduler runs the status-refresh and stale-sweep ticks.
type Scheduler struct {
	transport    Transport
	provisioning Provisioning
	monitor      Monitor
	clock        scheduler.Clock
	settings     Settings

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	status    *scheduler.Task
	stale     *scheduler.Task
	announced bool
}

func NewScheduler(transport Transport, provisioning Provisioning, monitor Monitor, clock scheduler.Clock, settings Settings) *Scheduler {
	if clock == nil {
		clock = scheduler.RealClock{}
	}
	if settings.StatusInterval <= 0 {
		settings.StatusInterval = 5 * time.Second
	}
	if settings.StaleInterval <= 0 {
		settings.StaleInterval = 2 * time.Second
	}
	return &Scheduler{
		transport:    transport,
		provisioning: provisioning,
		monitor:      monitor,
		clock:        clock,
		settings:     settings,
	}
}

// Start schedules both ticks after the boot delay. Calling it again while
// running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.status = scheduler.Every(s.clock, "status-refresh", s.settings.StartDelay, s.settings.StatusInterval, s.checkStatus)
	s.stale = scheduler.Every(s.clock, "stale-sweep", s.settings.StartDelay, s.settings.StaleInterval, s.sweepStale)
	logger.Log.Info("Health scheduler started",
		"start_delay", s.settings.StartDelay,
		"status_interval", s.settings.StatusInterval,
		"stale_interval", s.settings.StaleInterval)
}

// Stop cancels both ticks and any sweep in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return
	}
	s.status.Stop()
	s.stale.Stop()
	s.cancel()
	s.status, s.stale = nil, nil
	logger.Log.Info("Health scheduler stopped")
}

func (s *Scheduler) checkStatus() {
	if !s.provisioning.IsProvisioned() {
		return
	}
	s.monitor.ReconcileConnections(s.transport.ActiveConnections())
	s.monitor.RefreshNodeStorage()

	if !s.transport.Ready() {
		return
	}
	s.mu.Lock()
	first := !s.announced
	s.announced = true
	s.mu.Unlock()
	if first {
		logger.Log.Info("Transport ready")
		s.monitor.TransportReady()
	}
}

func (s *Scheduler) sweepStale() {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.settings.StaleInterval)
	defer cancel()
	if err := s.transport.PruneStale(ctx); err != nil {
		logger.Log.Warn("Stale connection sweep failed", "err", err)
	}
}
