package monitor

import (
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

func (m *Monitor) handleConnectionOpen(p models.ConnectionOpened) {
	defer m.recoverHandler(models.TransportConnectionOpen)
	evt := m.agg.RecordConnectionOpen(p.InstanceID, p.ConnectionID)
	m.forward(models.TransportConnectionOpen, p, evt)
}

func (m *Monitor) handleConnectionClosed(p models.ConnectionClosed) {
	defer m.recoverHandler(models.TransportConnectionClosed)
	duration := time.Duration(p.Duration) * time.Millisecond
	evt := m.agg.RecordConnectionClosed(p.InstanceID, p.ConnectionID, p.Code, duration)
	m.forward(models.TransportConnectionClosed, p, evt)
}

func (m *Monitor) handleConnectionError(p models.ConnectionError) {
	defer m.recoverHandler(models.TransportConnectionError)
	var message string
	if p.Error != nil {
		message = p.Error.Message
	} else {
		logger.Log.Warn("Connection error without detail", "connection_id", p.ConnectionID)
	}
	evt := m.agg.RecordConnectionError(p.InstanceID, p.ConnectionID, message)
	m.forward(models.TransportConnectionError, p, evt)
}

func (m *Monitor) handleSyncProgress(p models.ProgressSnapshot) {
	defer m.recoverHandler(models.TransportSyncProgress)
	evt := m.agg.RecordProgress(p.InstanceID, p.ConnectionID, p)
	m.forward(models.TransportSyncProgress, p, evt)
}

func (m *Monitor) handleSyncCompleted(p models.SyncCompleted) {
	defer m.recoverHandler(models.TransportSyncCompleted)
	var result models.SyncResult
	if p.Result != nil {
		result = *p.Result
	} else {
		logger.Log.Warn("Sync completed without result", "connection_id", p.ConnectionID)
	}
	evt := m.agg.RecordCompleted(p.InstanceID, p.ConnectionID, result)
	m.forward(models.TransportSyncCompleted, p, evt)
}

// forward passes the raw notification on to subscribers, followed by the
// appended event and the new snapshot when the notification was logged.
func (m *Monitor) forward(name string, payload any, evt *models.ReplicationEvent) {
	m.broadcaster.Broadcast(name, payload)
	if evt == nil {
		return
	}
	m.broadcaster.Broadcast(models.BroadcastReplicationEvent, *evt)
	m.broadcastInstances()
}

func (m *Monitor) recoverHandler(name string) {
	if r := recover(); r != nil {
		logger.Log.Error("Transport handler panicked", "event", name, "panic", r)
	}
}
