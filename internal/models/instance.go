package models

import "time"

type InstanceType string

const (
	InstanceNode    InstanceType = "node"
	InstanceBrowser InstanceType = "browser"
	InstanceMobile  InstanceType = "mobile"
)

type InstanceRole string

const (
	RoleArchive InstanceRole = "archive"
	RoleCache   InstanceRole = "cache"
	RoleHub     InstanceRole = "hub"
)

type InstanceStatus string

const (
	InstanceOnline  InstanceStatus = "online"
	InstanceOffline InstanceStatus = "offline"
	InstanceSyncing InstanceStatus = "syncing"
)

type StorageInfo struct {
	Used       uint64  `json:"used"`
	Total      uint64  `json:"total"`
	Percentage float64 `json:"percentage"`
}

type ReplicationState struct {
	InProgress    bool       `json:"inProgress"`
	LastCompleted *time.Time `json:"lastCompleted"`
	QueueSize     int        `json:"queueSize"`
	FailedItems   int        `json:"failedItems"`
	Errors        []string   `json:"errors"`
}

type InstanceInfo struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        InstanceType     `json:"type"`
	Role        InstanceRole     `json:"role"`
	Status      InstanceStatus   `json:"status"`
	Endpoint    string           `json:"endpoint"`
	Storage     *StorageInfo     `json:"storage"`
	LastSync    *time.Time       `json:"lastSync"`
	Replication ReplicationState `json:"replication"`
}
