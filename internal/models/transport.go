package models

// Notifications emitted by the peer transport.
const (
	TransportConnectionOpen   = "connection:open"
	TransportConnectionClosed = "connection:closed"
	TransportConnectionError  = "connection:error"
	TransportSyncProgress     = "sync:progress"
	TransportSyncCompleted    = "sync:completed"
	TransportReady            = "transport:ready"
)

// Control frames sent to the transport.
const (
	TransportSweep = "transport:sweep"
)

// Broadcast names pushed to UI subscribers.
const (
	BroadcastReplicationEvent = "replication:event"
	BroadcastInstancesUpdated = "instances:updated"
)

type ConnectionOpened struct {
	ConnectionID string `json:"connectionId" msgpack:"connectionId"`
	InstanceID   string `json:"instanceId,omitempty" msgpack:"instanceId,omitempty"`
}

type ConnectionClosed struct {
	ConnectionID string `json:"connectionId" msgpack:"connectionId"`
	InstanceID   string `json:"instanceId,omitempty" msgpack:"instanceId,omitempty"`
	Code         int    `json:"code" msgpack:"code"`
	Duration     int64  `json:"duration" msgpack:"duration"` // ms
}

type ErrorDetail struct {
	Message string `json:"message" msgpack:"message"`
}

type ConnectionError struct {
	ConnectionID string       `json:"connectionId" msgpack:"connectionId"`
	InstanceID   string       `json:"instanceId,omitempty" msgpack:"instanceId,omitempty"`
	Error        *ErrorDetail `json:"error" msgpack:"error"`
}

type ProgressSnapshot struct {
	ConnectionID     string `json:"connectionId" msgpack:"connectionId"`
	InstanceID       string `json:"instanceId,omitempty" msgpack:"instanceId,omitempty"`
	ObjectsProcessed int    `json:"objectsProcessed" msgpack:"objectsProcessed"`
	QueueSize        int    `json:"queueSize" msgpack:"queueSize"`
}

type SyncResult struct {
	ObjectsSent     int      `json:"objectsSent" msgpack:"objectsSent"`
	ObjectsReceived int      `json:"objectsReceived" msgpack:"objectsReceived"`
	Errors          []string `json:"errors" msgpack:"errors"`
}

type SyncCompleted struct {
	ConnectionID string      `json:"connectionId" msgpack:"connectionId"`
	InstanceID   string      `json:"instanceId,omitempty" msgpack:"instanceId,omitempty"`
	Result       *SyncResult `json:"result" msgpack:"result"`
}

type ReadyState struct {
	Ready bool `json:"ready" msgpack:"ready"`
}
