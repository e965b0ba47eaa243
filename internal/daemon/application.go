package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/api"
	"github.com/The-Promised-Neverland/syncmonitor/internal/broadcast"
	"github.com/The-Promised-Neverland/syncmonitor/internal/config"
	"github.com/The-Promised-Neverland/syncmonitor/internal/eventlog"
	"github.com/The-Promised-Neverland/syncmonitor/internal/health"
	"github.com/The-Promised-Neverland/syncmonitor/internal/identity"
	"github.com/The-Promised-Neverland/syncmonitor/internal/instances"
	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/internal/monitor"
	"github.com/The-Promised-Neverland/syncmonitor/internal/scheduler"
	"github.com/The-Promised-Neverland/syncmonitor/internal/storage"
	"github.com/The-Promised-Neverland/syncmonitor/internal/stun"
	"github.com/The-Promised-Neverland/syncmonitor/internal/throttle"
	"github.com/The-Promised-Neverland/syncmonitor/internal/transport"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Application owns the monitor and every collaborator wired to it.
type Application struct {
	config    *config.Config
	monitor   *monitor.Monitor
	transport *transport.Client
	health    *health.Scheduler
	identity  *identity.Watcher
	hub       *broadcast.Hub
	server    *http.Server
	stun      *stun.Client
}

func NewApplication(cfg *config.Config) (*Application, error) {
	clock := scheduler.RealClock{}

	ident, err := identity.NewWatcher(cfg.IdentityDir(), identity.DefaultFilterConfig(), 0)
	if err != nil {
		return nil, fmt.Errorf("identity watcher: %w", err)
	}

	log := eventlog.New(cfg.MaxEventsInMemory(), clock)
	agg := instances.New(instances.Settings{
		NodeID:          cfg.InstanceID(),
		NodeName:        cfg.InstanceName(),
		NodeRole:        models.InstanceRole(cfg.InstanceRole()),
		NormalCloseCode: cfg.NormalCloseCode(),
	}, log, throttle.New(cfg.ProgressReportInterval()), clock)

	hub := broadcast.NewHub()
	mon := monitor.New(monitor.Deps{
		Aggregator:   agg,
		Log:          log,
		Broadcaster:  hub,
		Storage:      storage.NewService(cfg.DataDir()),
		Provisioning: ident,
		Clock:        clock,
	}, monitor.Settings{
		MaxEventsReturned:    cfg.MaxEventsReturned(),
		RecentActivityWindow: cfg.RecentActivityWindow(),
		StorageProbeTimeout:  cfg.StorageProbeTimeout(),
	})

	client := transport.NewClient(transport.Options{
		URL:          cfg.TransportURL(),
		InstanceID:   cfg.InstanceID(),
		StaleTimeout: cfg.StaleConnectionTimeout(),
	})
	mon.Subscribe(client)
	ident.OnChange(mon.SetProvisioned)

	sched := health.NewScheduler(client, ident, mon, clock, health.Settings{
		StartDelay:     cfg.MonitoringStartDelay(),
		StatusInterval: cfg.StatusCheckInterval(),
		StaleInterval:  cfg.StaleCheckInterval(),
	})

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewHandler(mon), api.NewStreamHandler(hub, mon.ListInstances))
	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	app := &Application{
		config:    cfg,
		monitor:   mon,
		transport: client,
		health:    sched,
		identity:  ident,
		hub:       hub,
		server:    server,
	}
	if cfg.StunServerAddr() != "" {
		app.stun = stun.NewClient(cfg.StunServerAddr())
	}
	return app, nil
}

// Run starts every component and blocks until ctx is done or the HTTP
// server fails.
func (app *Application) Run(ctx context.Context) error {
	if err := app.identity.Start(ctx); err != nil {
		logger.Log.Warn("Identity watcher not started, provisioning is read on demand", "err", err)
	}
	app.monitor.Start()
	go app.transport.Run(ctx)
	app.health.Start(ctx)
	if app.stun != nil {
		go app.stun.Watch(ctx, app.config.StunInterval(), app.monitor.SetNodeEndpoint)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Log.Info("Sync monitor running",
		"instance", app.config.InstanceID(),
		"listen", app.config.ListenAddr(),
		"transport", app.config.TransportURL())

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}
	app.Shutdown()
	return runErr
}

// Shutdown stops the scheduler first so no tick touches a closed collaborator.
func (app *Application) Shutdown() {
	app.health.Stop()
	if err := app.transport.Close(); err != nil {
		logger.Log.Error("Error closing transport connection", "err", err)
	}
	app.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		logger.Log.Error("HTTP server shutdown failed", "err", err)
	}
	app.identity.Stop()
	logger.Log.Info("Sync monitor stopped")
}
