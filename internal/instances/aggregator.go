package instances

import (
	"fmt"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/internal/throttle"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

// Keys of the two built-in entries. Remote instances are keyed by their id.
const (
	NodeKey    = "node"
	BrowserKey = "browser"
)

// maxRetainedErrors bounds the per-instance error list; FailedItems follows it.
const maxRetainedErrors = 100

type Appender interface {
	Append(draft models.ReplicationEvent) models.ReplicationEvent
}

type Throttle interface {
	ShouldEmit(streamKey string, now time.Time) bool
}

type Clock interface {
	Now() time.Time
}

type Settings struct {
	NodeID          string
	NodeName        string
	NodeRole        models.InstanceRole
	NodeEndpoint    string
	BrowserID       string
	NormalCloseCode int
}

type instanceState struct {
	info      models.InstanceInfo
	reachable bool
	// connections are open transport connections; sessions are the subset
	// with a sync in flight.
	connections map[string]struct{}
	sessions    map[string]struct{}
}

// Aggregator derives per-instance status from transport notifications and
// drafts the matching replication events into the log.
type Aggregator struct {
	mu          sync.RWMutex
	clock       Clock
	log         Appender
	throttle    Throttle
	settings    Settings
	provisioned bool
	instances   map[string]*instanceState
	remoteOrder []string
	connOwner   map[string]string // connection id -> instance key
}

func New(settings Settings, log Appender, th Throttle, clock Clock) *Aggregator {
	if settings.NodeRole == "" {
		settings.NodeRole = models.RoleArchive
	}
	if settings.NodeName == "" {
		settings.NodeName = "Local Node"
	}
	if settings.BrowserID == "" {
		settings.BrowserID = BrowserKey
	}
	if settings.NormalCloseCode == 0 {
		settings.NormalCloseCode = 1000
	}
	a := &Aggregator{
		clock:     clock,
		log:       log,
		throttle:  th,
		settings:  settings,
		instances: make(map[string]*instanceState),
		connOwner: make(map[string]string),
	}
	a.instances[NodeKey] = newState(models.InstanceInfo{
		ID:       settings.NodeID,
		Name:     settings.NodeName,
		Type:     models.InstanceNode,
		Role:     settings.NodeRole,
		Endpoint: settings.NodeEndpoint,
	}, false)
	a.instances[BrowserKey] = newState(models.InstanceInfo{
		ID:   settings.BrowserID,
		Name: "Browser",
		Type: models.InstanceBrowser,
		Role: models.RoleCache,
	}, true)
	return a
}

func newState(info models.InstanceInfo, reachable bool) *instanceState {
	info.Replication.Errors = []string{}
	return &instanceState{
		info:        info,
		reachable:   reachable,
		connections: make(map[string]struct{}),
		sessions:    make(map[string]struct{}),
	}
}

// SetProvisioned marks whether the local node has an identity. The node is
// offline, and hidden from snapshots, until it does.
func (a *Aggregator) SetProvisioned(provisioned bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provisioned = provisioned
	a.instances[NodeKey].reachable = provisioned
}

func (a *Aggregator) Provisioned() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.provisioned
}

// UpsertInstance merges the non-zero fields of partial into the entry it
// identifies, creating a remote entry on first sight.
func (a *Aggregator) UpsertInstance(partial models.InstanceInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key, ok := a.keyFor(partial)
	if !ok {
		logger.Log.Warn("Ignoring instance update without an id", "type", partial.Type)
		return
	}
	st := a.stateFor(key)
	if partial.ID != "" {
		st.info.ID = partial.ID
	}
	if partial.Name != "" {
		st.info.Name = partial.Name
	}
	if partial.Type != "" && key != NodeKey && key != BrowserKey {
		st.info.Type = partial.Type
	}
	if partial.Role != "" {
		st.info.Role = partial.Role
	}
	if partial.Endpoint != "" {
		st.info.Endpoint = partial.Endpoint
	}
	if partial.Storage != nil {
		s := *partial.Storage
		st.info.Storage = &s
	}
	if partial.LastSync != nil {
		ts := *partial.LastSync
		st.info.LastSync = &ts
	}
	switch partial.Status {
	case models.InstanceOnline:
		if key != NodeKey {
			st.reachable = true
		}
	case models.InstanceOffline:
		if key != NodeKey && key != BrowserKey {
			st.reachable = false
		}
	}
}

func (a *Aggregator) SetStorage(instanceKey string, info models.StorageInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stateFor(normalizeKey(instanceKey))
	st.info.Storage = &info
}

func (a *Aggregator) RecordConnectionOpen(instanceKey, connectionID string) *models.ReplicationEvent {
	key, cid := normalizeKey(instanceKey), normalizeConn(connectionID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.connOwner[cid]; ok && prev != key {
		a.dropConnection(prev, cid)
	}
	st := a.stateFor(key)
	st.connections[cid] = struct{}{}
	st.sessions[cid] = struct{}{}
	a.connOwner[cid] = key
	return a.append(models.ReplicationEvent{
		Type:    models.EventSyncStarted,
		Source:  models.EndpointNode,
		Target:  targetFor(key),
		Status:  models.StatusPending,
		Details: fmt.Sprintf("Connection opened: %s", cid),
	})
}

func (a *Aggregator) RecordConnectionClosed(instanceKey, connectionID string, closeCode int, duration time.Duration) *models.ReplicationEvent {
	cid := normalizeConn(connectionID)
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.ownerOf(instanceKey, cid)
	a.dropConnection(key, cid)
	if duration < 0 {
		duration = 0
	}
	draft := models.ReplicationEvent{
		Type:    models.EventSyncCompleted,
		Source:  models.EndpointNode,
		Target:  targetFor(key),
		Status:  models.StatusSuccess,
		Details: fmt.Sprintf("Connection closed: %s (code %d, %dms)", cid, closeCode, duration.Milliseconds()),
	}
	if closeCode != a.settings.NormalCloseCode {
		draft.Type = models.EventSyncFailed
		draft.Status = models.StatusError
	}
	return a.append(draft)
}

func (a *Aggregator) RecordConnectionError(instanceKey, connectionID, message string) *models.ReplicationEvent {
	cid := normalizeConn(connectionID)
	if message == "" {
		message = "unknown error"
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.ownerOf(instanceKey, cid)
	st := a.stateFor(key)
	st.info.Replication.Errors = append(st.info.Replication.Errors, message)
	if over := len(st.info.Replication.Errors) - maxRetainedErrors; over > 0 {
		st.info.Replication.Errors = append([]string(nil), st.info.Replication.Errors[over:]...)
	}
	st.info.Replication.FailedItems = len(st.info.Replication.Errors)
	return a.append(models.ReplicationEvent{
		Type:    models.EventSyncFailed,
		Source:  models.EndpointNode,
		Target:  targetFor(key),
		Status:  models.StatusError,
		Details: fmt.Sprintf("Connection error on %s: %s", cid, message),
	})
}

// RecordProgress always updates the queue size; the log entry is subject to
// the progress throttle and nil is returned when it is suppressed.
func (a *Aggregator) RecordProgress(instanceKey, connectionID string, p models.ProgressSnapshot) *models.ReplicationEvent {
	cid := normalizeConn(connectionID)
	queue := max(p.QueueSize, 0)
	processed := max(p.ObjectsProcessed, 0)
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.ownerOf(instanceKey, cid)
	st := a.stateFor(key)
	st.info.Replication.QueueSize = queue
	if _, open := st.connections[cid]; open {
		st.sessions[cid] = struct{}{}
	}
	if !a.throttle.ShouldEmit(throttle.ProgressStream, a.clock.Now()) {
		return nil
	}
	return a.append(models.ReplicationEvent{
		Type:    models.EventObjectReceived,
		Source:  targetFor(key),
		Target:  models.EndpointNode,
		Status:  models.StatusPending,
		Details: fmt.Sprintf("Progress on %s: %d objects processed, %d queued", cid, processed, queue),
	})
}

func (a *Aggregator) RecordCompleted(instanceKey, connectionID string, r models.SyncResult) *models.ReplicationEvent {
	cid := normalizeConn(connectionID)
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.ownerOf(instanceKey, cid)
	st := a.stateFor(key)
	delete(st.sessions, cid)
	now := a.clock.Now()
	st.info.Replication.LastCompleted = &now
	st.info.LastSync = &now

	draft := models.ReplicationEvent{
		Type:    models.EventSyncCompleted,
		Source:  models.EndpointNode,
		Target:  targetFor(key),
		Status:  models.StatusSuccess,
		Details: fmt.Sprintf("Sync completed on %s: %d sent, %d received", cid, r.ObjectsSent, r.ObjectsReceived),
	}
	if len(r.Errors) > 0 {
		draft.Type = models.EventSyncFailed
		draft.Status = models.StatusError
		draft.Details = fmt.Sprintf("Sync completed on %s with %d error(s): %d sent, %d received",
			cid, len(r.Errors), r.ObjectsSent, r.ObjectsReceived)
	}
	return a.append(draft)
}

// Reconcile drops tracked connections the transport no longer reports and
// returns how many were dropped.
func (a *Aggregator) Reconcile(active []string) int {
	alive := make(map[string]struct{}, len(active))
	for _, cid := range active {
		alive[cid] = struct{}{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	dropped := 0
	for cid, key := range a.connOwner {
		if _, ok := alive[cid]; ok {
			continue
		}
		a.dropConnection(key, cid)
		dropped++
	}
	if dropped > 0 {
		logger.Log.Debug("Reconciled stale connections", "dropped", dropped)
	}
	return dropped
}

func (a *Aggregator) Get(instanceKey string) (models.InstanceInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.instances[normalizeKey(instanceKey)]
	if !ok {
		return models.InstanceInfo{}, false
	}
	return a.view(normalizeKey(instanceKey), st), true
}

// Snapshot lists the node (when provisioned), the browser, then remotes in
// discovery order.
func (a *Aggregator) Snapshot() []models.InstanceInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.InstanceInfo, 0, 2+len(a.remoteOrder))
	if a.provisioned {
		out = append(out, a.view(NodeKey, a.instances[NodeKey]))
	}
	out = append(out, a.view(BrowserKey, a.instances[BrowserKey]))
	for _, key := range a.remoteOrder {
		out = append(out, a.view(key, a.instances[key]))
	}
	return out
}

// view copies st with derived status fields. Caller holds the lock.
func (a *Aggregator) view(key string, st *instanceState) models.InstanceInfo {
	info := st.info
	conns, sessions := len(st.connections), len(st.sessions)
	if key == NodeKey {
		// the local node is one side of every connection
		conns, sessions = len(a.connOwner), a.activeSessions()
	}
	switch {
	case conns > 0:
		info.Status = models.InstanceSyncing
	case st.reachable:
		info.Status = models.InstanceOnline
	default:
		info.Status = models.InstanceOffline
	}
	info.Replication.InProgress = sessions > 0
	info.Replication.Errors = append([]string{}, st.info.Replication.Errors...)
	if st.info.Storage != nil {
		s := *st.info.Storage
		info.Storage = &s
	}
	if st.info.LastSync != nil {
		ts := *st.info.LastSync
		info.LastSync = &ts
	}
	if st.info.Replication.LastCompleted != nil {
		ts := *st.info.Replication.LastCompleted
		info.Replication.LastCompleted = &ts
	}
	return info
}

func (a *Aggregator) activeSessions() int {
	n := 0
	for _, st := range a.instances {
		n += len(st.sessions)
	}
	return n
}

// ownerOf prefers the instance that opened cid over the key on the
// notification. Caller holds the lock.
func (a *Aggregator) ownerOf(instanceKey, cid string) string {
	if owner, ok := a.connOwner[cid]; ok {
		return owner
	}
	return normalizeKey(instanceKey)
}

func (a *Aggregator) dropConnection(key, cid string) {
	if owner, ok := a.connOwner[cid]; ok {
		key = owner
	}
	delete(a.connOwner, cid)
	if st, ok := a.instances[key]; ok {
		delete(st.connections, cid)
		delete(st.sessions, cid)
	}
}

func (a *Aggregator) append(draft models.ReplicationEvent) *models.ReplicationEvent {
	evt := a.log.Append(draft)
	return &evt
}

// stateFor returns the entry for key, creating a reachable remote on first
// sight. Caller holds the write lock.
func (a *Aggregator) stateFor(key string) *instanceState {
	if st, ok := a.instances[key]; ok {
		return st
	}
	st := newState(models.InstanceInfo{
		ID:   key,
		Name: remoteName(key),
		Type: models.InstanceNode,
		Role: models.RoleHub,
	}, true)
	a.instances[key] = st
	a.remoteOrder = append(a.remoteOrder, key)
	logger.Log.Info("Discovered remote instance", "instance", key)
	return st
}

// keyFor routes a partial update. An empty id addresses the local node, so
// only node-typed or untyped partials may omit it.
func (a *Aggregator) keyFor(info models.InstanceInfo) (string, bool) {
	switch {
	case info.Type == models.InstanceBrowser:
		return BrowserKey, true
	case info.ID == a.settings.NodeID && info.ID != "":
		return NodeKey, true
	case info.ID == "":
		return NodeKey, info.Type == "" || info.Type == models.InstanceNode
	case info.ID == a.settings.BrowserID:
		return BrowserKey, true
	default:
		return info.ID, true
	}
}

func targetFor(key string) models.Endpoint {
	switch key {
	case NodeKey:
		return models.EndpointRemote
	case BrowserKey:
		return models.EndpointBrowser
	default:
		return models.EndpointRemote
	}
}

func normalizeKey(key string) string {
	if key == "" {
		return NodeKey
	}
	return key
}

func normalizeConn(cid string) string {
	if cid == "" {
		return "unknown"
	}
	return cid
}

func remoteName(key string) string {
	short := key
	if len(short) > 8 {
		short = short[:8]
	}
	return "Remote " + short
}
