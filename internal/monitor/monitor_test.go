package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/eventlog"
	"github.com/The-Promised-Neverland/syncmonitor/internal/instances"
	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/internal/scheduler"
	"github.com/The-Promised-Neverland/syncmonitor/internal/throttle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	open      func(models.ConnectionOpened)
	closed    func(models.ConnectionClosed)
	failed    func(models.ConnectionError)
	progress  func(models.ProgressSnapshot)
	completed func(models.SyncCompleted)
}

func (f *fakeEvents) OnConnectionOpen(fn func(models.ConnectionOpened)) { f.open = fn }
func (f *fakeEvents) OnConnectionClosed(fn func(models.ConnectionClosed)) { f.closed = fn }
func (f *fakeEvents) OnConnectionError(fn func(models.ConnectionError)) { f.failed = fn }
func (f *fakeEvents) OnSyncProgress(fn func(models.ProgressSnapshot)) { f.progress = fn }
func (f *fakeEvents) OnSyncCompleted(fn func(models.SyncCompleted)) { f.completed = fn }

type broadcast struct {
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []broadcast
}

func (r *recordingBroadcaster) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, broadcast{event, payload})
}

func (r *recordingBroadcaster) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, b := range r.sent {
		out = append(out, b.event)
	}
	return out
}

func (r *recordingBroadcaster) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type mockProber struct {
	GetStorageInfoFunc func(ctx context.Context, kind models.InstanceType) (models.StorageInfo, error)
}

func (m *mockProber) GetStorageInfo(ctx context.Context, kind models.InstanceType) (models.StorageInfo, error) {
	return m.GetStorageInfoFunc(ctx, kind)
}

type staticProvisioning bool

func (s staticProvisioning) IsProvisioned() bool { return bool(s) }

type harness struct {
	clock  *scheduler.FakeClock
	log    *eventlog.Log
	agg    *instances.Aggregator
	events *fakeEvents
	bc     *recordingBroadcaster
	mon    *Monitor
}

func newHarness(t *testing.T, prober StorageProber, settings Settings) *harness {
	t.Helper()
	clock := scheduler.NewFakeClock(time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC))
	log := eventlog.New(20, clock)
	agg := instances.New(instances.Settings{NodeID: "node-1"}, log, throttle.New(time.Second), clock)
	bc := &recordingBroadcaster{}
	mon := New(Deps{
		Aggregator:   agg,
		Log:          log,
		Broadcaster:  bc,
		Storage:      prober,
		Provisioning: staticProvisioning(true),
		Clock:        clock,
	}, settings)
	events := &fakeEvents{}
	mon.Subscribe(events)
	return &harness{clock: clock, log: log, agg: agg, events: events, bc: bc, mon: mon}
}

func TestSubscribe_RegistersAllFiveHandlers(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	assert.NotNil(t, h.events.open)
	assert.NotNil(t, h.events.closed)
	assert.NotNil(t, h.events.failed)
	assert.NotNil(t, h.events.progress)
	assert.NotNil(t, h.events.completed)
}

func TestStart_AppendsMonitoringStarted(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	h.mon.Start()

	events := h.mon.GetReplicationEvents(0)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMonitoringStarted, events[0].Type)
	assert.Equal(t, models.EndpointSystem, events[0].Source)
	assert.Equal(t, []string{models.BroadcastReplicationEvent}, h.bc.names())
}

func TestHandlers_ForwardAndBroadcast(t *testing.T) {
	h := newHarness(t, nil, Settings{})

	h.events.open(models.ConnectionOpened{ConnectionID: "c1"})

	assert.Equal(t, []string{
		models.TransportConnectionOpen,
		models.BroadcastReplicationEvent,
		models.BroadcastInstancesUpdated,
	}, h.bc.names())

	instancesList := h.mon.ListInstances()
	require.Len(t, instancesList, 2)
	assert.Equal(t, models.InstanceSyncing, instancesList[0].Status)
	assert.True(t, instancesList[0].Replication.InProgress)

	h.events.closed(models.ConnectionClosed{ConnectionID: "c1", Code: 1000, Duration: 1200})
	node := h.mon.ListInstances()[0]
	assert.Equal(t, models.InstanceOnline, node.Status)
	assert.False(t, node.Replication.InProgress)

	events := h.mon.GetReplicationEvents(0)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventSyncCompleted, events[0].Type)
	assert.Equal(t, models.EventSyncStarted, events[1].Type)
}

func TestHandlers_ThrottledProgressForwardsRawEventOnly(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	h.events.open(models.ConnectionOpened{ConnectionID: "c1"})
	h.events.progress(models.ProgressSnapshot{ConnectionID: "c1", QueueSize: 9})
	h.bc.reset()

	h.clock.Advance(100 * time.Millisecond)
	h.events.progress(models.ProgressSnapshot{ConnectionID: "c1", QueueSize: 4})

	assert.Equal(t, []string{models.TransportSyncProgress}, h.bc.names())
	assert.Equal(t, 4, h.mon.ListInstances()[0].Replication.QueueSize)
	assert.Equal(t, 2, h.log.Len())
}

func TestHandlers_MalformedPayloads(t *testing.T) {
	h := newHarness(t, nil, Settings{})

	assert.NotPanics(t, func() {
		h.events.failed(models.ConnectionError{ConnectionID: "c1"})
		h.events.completed(models.SyncCompleted{ConnectionID: "c1"})
	})

	node := h.mon.ListInstances()[0]
	assert.Equal(t, 1, node.Replication.FailedItems)
	events := h.mon.GetReplicationEvents(0)
	require.Len(t, events, 2)
	assert.Equal(t, models.StatusSuccess, events[0].Status)
}

func TestHandlers_ErrorsAndCompletion(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	h.events.open(models.ConnectionOpened{ConnectionID: "c1", InstanceID: "peer-9"})
	h.events.failed(models.ConnectionError{ConnectionID: "c1", Error: &models.ErrorDetail{Message: "first"}})
	h.events.failed(models.ConnectionError{ConnectionID: "c1", Error: &models.ErrorDetail{Message: "second"}})
	h.events.completed(models.SyncCompleted{ConnectionID: "c1", Result: &models.SyncResult{Errors: []string{"x"}}})

	list := h.mon.ListInstances()
	require.Len(t, list, 3)
	peer := list[2]
	assert.Equal(t, "peer-9", peer.ID)
	assert.Equal(t, 2, peer.Replication.FailedItems)
	assert.Equal(t, []string{"first", "second"}, peer.Replication.Errors)
	assert.False(t, peer.Replication.InProgress)
	assert.NotNil(t, peer.LastSync)

	latest := h.mon.GetReplicationEvents(1)
	require.Len(t, latest, 1)
	assert.Equal(t, models.StatusError, latest[0].Status)
}

func TestGetReplicationEvents_HardCap(t *testing.T) {
	h := newHarness(t, nil, Settings{MaxEventsReturned: 3})
	for i := 0; i < 8; i++ {
		h.events.open(models.ConnectionOpened{ConnectionID: "c"})
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, 3},
		{-1, 3},
		{2, 2},
		{3, 3},
		{50, 3},
	}
	for _, tt := range tests {
		assert.Len(t, h.mon.GetReplicationEvents(tt.limit), tt.want, "limit %d", tt.limit)
	}
}

func TestGetDataStats_RecentActivityWindow(t *testing.T) {
	h := newHarness(t, nil, Settings{RecentActivityWindow: time.Hour})

	stats := h.mon.GetDataStats()
	assert.Equal(t, models.DataStats{}, stats, "no data yet is a zero response")

	h.events.open(models.ConnectionOpened{ConnectionID: "old"})
	h.clock.Advance(90 * time.Minute)
	h.events.open(models.ConnectionOpened{ConnectionID: "a"})
	h.clock.Advance(30 * time.Minute)
	h.events.open(models.ConnectionOpened{ConnectionID: "b"})

	ack := h.mon.UpdateDataStats(models.DataStats{TotalObjects: 40, Messages: 12, RecentActivity: 999})
	assert.True(t, ack.Success)

	stats = h.mon.GetDataStats()
	assert.Equal(t, 40, stats.TotalObjects)
	assert.Equal(t, 12, stats.Messages)
	assert.Equal(t, 2, stats.RecentActivity, "window edge is inclusive, older entries excluded")
}

func TestUpdateBrowserStorage(t *testing.T) {
	h := newHarness(t, nil, Settings{})

	ack := h.mon.UpdateBrowserStorage(models.StorageInfo{Used: 25, Total: 100})

	assert.True(t, ack.Success)
	browser := h.mon.ListInstances()[1]
	require.NotNil(t, browser.Storage)
	assert.Equal(t, uint64(25), browser.Storage.Used)
	assert.InDelta(t, 25.0, browser.Storage.Percentage, 0.001)
	assert.Equal(t, []string{models.BroadcastInstancesUpdated}, h.bc.names())
}

func TestTransportReady_AppendsOnce(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	h.mon.TransportReady()
	h.mon.TransportReady()

	events := h.mon.GetReplicationEvents(0)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSyncReady, events[0].Type)
	assert.Equal(t, models.StatusReady, events[0].Status)
}

func TestRefreshNodeStorage(t *testing.T) {
	prober := &mockProber{GetStorageInfoFunc: func(ctx context.Context, kind models.InstanceType) (models.StorageInfo, error) {
		assert.Equal(t, models.InstanceNode, kind)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return models.StorageInfo{Used: 1, Total: 4, Percentage: 25}, nil
	}}
	h := newHarness(t, prober, Settings{})

	h.mon.RefreshNodeStorage()

	require.Eventually(t, func() bool {
		node, _ := h.agg.Get(instances.NodeKey)
		return node.Storage != nil
	}, time.Second, 5*time.Millisecond)
	node, _ := h.agg.Get(instances.NodeKey)
	assert.Equal(t, 25.0, node.Storage.Percentage)
}

func TestRefreshNodeStorage_FailureKeepsCache(t *testing.T) {
	calls := make(chan struct{}, 1)
	prober := &mockProber{GetStorageInfoFunc: func(context.Context, models.InstanceType) (models.StorageInfo, error) {
		calls <- struct{}{}
		return models.StorageInfo{}, errors.New("disk unavailable")
	}}
	h := newHarness(t, prober, Settings{})
	h.agg.SetStorage(instances.NodeKey, models.StorageInfo{Used: 7, Total: 10, Percentage: 70})

	h.mon.RefreshNodeStorage()
	<-calls
	require.Eventually(t, func() bool { return !h.mon.probing.Load() }, time.Second, 5*time.Millisecond)

	node, _ := h.agg.Get(instances.NodeKey)
	require.NotNil(t, node.Storage)
	assert.Equal(t, uint64(7), node.Storage.Used)
}

func TestRefreshNodeStorage_SingleProbeInFlight(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	prober := &mockProber{GetStorageInfoFunc: func(ctx context.Context, _ models.InstanceType) (models.StorageInfo, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return models.StorageInfo{}, ctx.Err()
	}}
	h := newHarness(t, prober, Settings{StorageProbeTimeout: time.Minute})

	h.mon.RefreshNodeStorage()
	require.Eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return calls == 1 }, time.Second, time.Millisecond)
	h.mon.RefreshNodeStorage()
	h.mon.RefreshNodeStorage()
	close(release)

	require.Eventually(t, func() bool { return !h.mon.probing.Load() }, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestSetProvisioned_TogglesNodeVisibility(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	h.mon.provisioning = nil

	h.mon.SetProvisioned(false)
	assert.Len(t, h.mon.ListInstances(), 1)

	h.bc.reset()
	h.mon.SetProvisioned(false)
	assert.Empty(t, h.bc.names(), "unchanged state is not rebroadcast")

	h.mon.SetProvisioned(true)
	assert.Len(t, h.mon.ListInstances(), 2)
	assert.Equal(t, []string{models.BroadcastInstancesUpdated}, h.bc.names())
}

func TestSetNodeEndpoint(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	h.mon.SetNodeEndpoint("198.51.100.4:5000")
	assert.Equal(t, "198.51.100.4:5000", h.mon.ListInstances()[0].Endpoint)
}

func TestReconcileConnections(t *testing.T) {
	h := newHarness(t, nil, Settings{})
	h.events.open(models.ConnectionOpened{ConnectionID: "c1"})
	h.bc.reset()

	h.mon.ReconcileConnections([]string{"c1"})
	assert.Empty(t, h.bc.names())

	h.mon.ReconcileConnections(nil)
	assert.Equal(t, []string{models.BroadcastInstancesUpdated}, h.bc.names())
	assert.Equal(t, models.InstanceOnline, h.mon.ListInstances()[0].Status)
}
