package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/eventlog"
	"github.com/The-Promised-Neverland/syncmonitor/internal/instances"
	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

// TransportEvents is the registration surface of the peer transport. Each
// callback may be invoked from the transport's own goroutine.
type TransportEvents interface {
	OnConnectionOpen(func(models.ConnectionOpened))
	OnConnectionClosed(func(models.ConnectionClosed))
	OnConnectionError(func(models.ConnectionError))
	OnSyncProgress(func(models.ProgressSnapshot))
	OnSyncCompleted(func(models.SyncCompleted))
}

type Broadcaster interface {
	Broadcast(event string, payload any)
}

type StorageProber interface {
	GetStorageInfo(ctx context.Context, kind models.InstanceType) (models.StorageInfo, error)
}

type Provisioning interface {
	IsProvisioned() bool
}

type Clock interface {
	Now() time.Time
}

type Deps struct {
	Aggregator   *instances.Aggregator
	Log          *eventlog.Log
	Broadcaster  Broadcaster
	Storage      StorageProber
	Provisioning Provisioning
	Clock        Clock
}

type Settings struct {
	MaxEventsReturned    int
	RecentActivityWindow time.Duration
	StorageProbeTimeout  time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any) {}

// Monitor is the entry point for queries and out-of-band updates, and the
// sink for transport notifications.
type Monitor struct {
	agg          *instances.Aggregator
	log          *eventlog.Log
	broadcaster  Broadcaster
	storage      StorageProber
	provisioning Provisioning
	clock        Clock
	settings     Settings

	statsMu sync.RWMutex
	stats   models.DataStats

	readyOnce sync.Once
	probing   atomic.Bool
}

func New(deps Deps, settings Settings) *Monitor {
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = nopBroadcaster{}
	}
	if settings.MaxEventsReturned <= 0 {
		settings.MaxEventsReturned = 100
	}
	if settings.RecentActivityWindow <= 0 {
		settings.RecentActivityWindow = time.Hour
	}
	if settings.StorageProbeTimeout <= 0 {
		settings.StorageProbeTimeout = 2 * time.Second
	}
	return &Monitor{
		agg:          deps.Aggregator,
		log:          deps.Log,
		broadcaster:  deps.Broadcaster,
		storage:      deps.Storage,
		provisioning: deps.Provisioning,
		clock:        deps.Clock,
		settings:     settings,
	}
}

// Subscribe registers the five transport handlers.
func (m *Monitor) Subscribe(events TransportEvents) {
	events.OnConnectionOpen(m.handleConnectionOpen)
	events.OnConnectionClosed(m.handleConnectionClosed)
	events.OnConnectionError(m.handleConnectionError)
	events.OnSyncProgress(m.handleSyncProgress)
	events.OnSyncCompleted(m.handleSyncCompleted)
}

func (m *Monitor) Start() {
	m.syncProvisioning()
	evt := m.log.Append(models.ReplicationEvent{
		Type:    models.EventMonitoringStarted,
		Source:  models.EndpointSystem,
		Target:  models.EndpointAll,
		Status:  models.StatusSuccess,
		Details: "Replication monitoring started",
	})
	m.broadcaster.Broadcast(models.BroadcastReplicationEvent, evt)
	logger.Log.Info("Replication monitor started")
}

func (m *Monitor) ListInstances() []models.InstanceInfo {
	m.syncProvisioning()
	return m.agg.Snapshot()
}

// GetReplicationEvents returns newest first, never more than the configured
// cap. A non-positive limit means the cap.
func (m *Monitor) GetReplicationEvents(limit int) []models.ReplicationEvent {
	if limit <= 0 || limit > m.settings.MaxEventsReturned {
		limit = m.settings.MaxEventsReturned
	}
	return m.log.List(limit)
}

func (m *Monitor) GetDataStats() models.DataStats {
	m.statsMu.RLock()
	stats := m.stats
	m.statsMu.RUnlock()
	stats.RecentActivity = m.log.CountSince(m.clock.Now().Add(-m.settings.RecentActivityWindow))
	return stats
}

func (m *Monitor) UpdateBrowserStorage(info models.StorageInfo) models.Ack {
	if info.Percentage == 0 && info.Total > 0 {
		info.Percentage = float64(info.Used) / float64(info.Total) * 100
	}
	m.agg.SetStorage(instances.BrowserKey, info)
	m.broadcastInstances()
	return models.Ack{Success: true}
}

func (m *Monitor) UpdateDataStats(stats models.DataStats) models.Ack {
	m.statsMu.Lock()
	m.stats = stats
	m.stats.RecentActivity = 0
	m.statsMu.Unlock()
	return models.Ack{Success: true}
}

// SetProvisioned is called when the identity state changes.
func (m *Monitor) SetProvisioned(provisioned bool) {
	if m.agg.Provisioned() == provisioned {
		return
	}
	m.agg.SetProvisioned(provisioned)
	logger.Log.Info("Provisioning state changed", "provisioned", provisioned)
	m.broadcastInstances()
}

func (m *Monitor) SetNodeEndpoint(endpoint string) {
	m.agg.UpsertInstance(models.InstanceInfo{Type: models.InstanceNode, Endpoint: endpoint})
	m.broadcastInstances()
}

func (m *Monitor) ReconcileConnections(active []string) {
	if m.agg.Reconcile(active) > 0 {
		m.broadcastInstances()
	}
}

// TransportReady appends sync-ready the first time it is called.
func (m *Monitor) TransportReady() {
	m.readyOnce.Do(func() {
		evt := m.log.Append(models.ReplicationEvent{
			Type:    models.EventSyncReady,
			Source:  models.EndpointSystem,
			Target:  models.EndpointAll,
			Status:  models.StatusReady,
			Details: "Replication transport ready",
		})
		m.broadcaster.Broadcast(models.BroadcastReplicationEvent, evt)
	})
}

// RefreshNodeStorage probes node storage in the background. Only one probe
// runs at a time; on failure the last known value stays.
func (m *Monitor) RefreshNodeStorage() {
	if m.storage == nil || !m.probing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.probing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), m.settings.StorageProbeTimeout)
		defer cancel()
		info, err := m.storage.GetStorageInfo(ctx, models.InstanceNode)
		if err != nil {
			logger.Log.Warn("Storage probe failed, keeping cached value", "err", err)
			return
		}
		m.agg.SetStorage(instances.NodeKey, info)
		m.broadcastInstances()
	}()
}

func (m *Monitor) syncProvisioning() {
	if m.provisioning == nil {
		return
	}
	if p := m.provisioning.IsProvisioned(); p != m.agg.Provisioned() {
		m.agg.SetProvisioned(p)
	}
}

func (m *Monitor) broadcastInstances() {
	m.broadcaster.Broadcast(models.BroadcastInstancesUpdated, m.agg.Snapshot())
}
