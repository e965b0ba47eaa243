package daemon

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/config"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	kardianos "github.com/kardianos/service"
)

const stopTimeout = 10 * time.Second

// Runner is what the service manager starts and stops.
type Runner interface {
	Run(ctx context.Context) error
}

// DaemonManager adapts the application to the OS service manager and
// installs, removes and controls the service.
type DaemonManager struct {
	cfg       *config.Config
	app       Runner
	appCtx    context.Context
	appCancel context.CancelFunc
	done      chan struct{}
}

func NewDaemonManager(cfg *config.Config, app Runner) *DaemonManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &DaemonManager{
		cfg:       cfg,
		app:       app,
		appCtx:    ctx,
		appCancel: cancel,
		done:      make(chan struct{}),
	}
}

func (m *DaemonManager) serviceConfig() *kardianos.Config {
	return &kardianos.Config{
		Name:        m.cfg.ServiceName(),
		DisplayName: m.cfg.ServiceDisplayName(),
		Description: m.cfg.ServiceDescription(),
		Arguments:   []string{"run"},
		Option: kardianos.KeyValue{
			// systemd
			"Restart":     "always",
			"LimitNOFILE": 65536,
			// launchd
			"KeepAlive": true,
			"RunAtLoad": true,
			// windows
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"DelayedAutoStart":       true,
		},
	}
}

func (m *DaemonManager) newService() (kardianos.Service, error) {
	if m.app == nil {
		return nil, fmt.Errorf("application cannot be nil")
	}
	return kardianos.New(m, m.serviceConfig())
}

func (m *DaemonManager) Start(s kardianos.Service) error {
	logger.Log.Info("Kardianos starting service",
		"service", m.cfg.ServiceName(),
		"platform", kardianos.Platform(),
		"interactive", kardianos.Interactive())
	go func() {
		defer close(m.done)
		if err := m.app.Run(m.appCtx); err != nil {
			logger.Log.Error("❌ Sync monitor exited with error", "err", err)
		}
	}()
	return nil
}

func (m *DaemonManager) Stop(s kardianos.Service) error {
	logger.Log.Info("Kardianos stopping service", "service", m.cfg.ServiceName())
	m.appCancel()
	select {
	case <-m.done:
	case <-time.After(stopTimeout):
		logger.Log.Warn("Sync monitor did not stop in time", "timeout", stopTimeout)
	}
	return nil
}

func (m *DaemonManager) InstallDaemon() error {
	if err := m.ensureDirectories(); err != nil {
		return err
	}
	s, err := m.newService()
	if err != nil {
		return err
	}
	if err := s.Install(); err != nil {
		if runtime.GOOS == "windows" {
			return fmt.Errorf("failed to install Windows service (requires administrator privileges): %w", err)
		}
		return fmt.Errorf("failed to install service: %w", err)
	}
	return nil
}

func (m *DaemonManager) UninstallDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	if err := s.Stop(); err != nil {
		logger.Log.Warn("Service was not running before uninstall", "err", err)
	}
	if err := s.Uninstall(); err != nil {
		return fmt.Errorf("failed to uninstall service: %w", err)
	}
	return nil
}

func (m *DaemonManager) StartDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Start()
}

func (m *DaemonManager) StopDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Stop()
}

func (m *DaemonManager) RestartDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Restart()
}

// Run blocks, either under the service manager or in the foreground.
func (m *DaemonManager) Run() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Run()
}

func (m *DaemonManager) ensureDirectories() error {
	for _, dir := range []string{m.cfg.DataDir(), m.cfg.IdentityDir()} {
		if info, err := os.Stat(dir); err == nil {
			if !info.IsDir() {
				return fmt.Errorf("path exists but is not a directory: %s", dir)
			}
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		logger.Log.Info("Created directory", "path", dir)
	}
	return nil
}
