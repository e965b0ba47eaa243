package models

import "time"

type EventType string

const (
	EventSyncReady         EventType = "sync-ready"
	EventSyncStarted       EventType = "sync-started"
	EventSyncCompleted     EventType = "sync-completed"
	EventSyncFailed        EventType = "sync-failed"
	EventObjectReceived    EventType = "object-received"
	EventMonitoringStarted EventType = "monitoring-started"
)

type Endpoint string

const (
	EndpointNode    Endpoint = "node"
	EndpointBrowser Endpoint = "browser"
	EndpointRemote  Endpoint = "remote"
	EndpointSystem  Endpoint = "system"
	EndpointAll     Endpoint = "all"
)

type EventStatus string

const (
	StatusPending EventStatus = "pending"
	StatusSuccess EventStatus = "success"
	StatusError   EventStatus = "error"
	StatusReady   EventStatus = "ready"
)

// ReplicationEvent is one entry of the activity feed. ID and Timestamp are
// assigned by the event log on append.
type ReplicationEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Source    Endpoint    `json:"source"`
	Target    Endpoint    `json:"target"`
	Status    EventStatus `json:"status"`
	Details   string      `json:"details"`
}
