package models

type DataStats struct {
	TotalObjects   int   `json:"totalObjects"`
	TotalSize      int64 `json:"totalSize"`
	Messages       int   `json:"messages"`
	Files          int   `json:"files"`
	Contacts       int   `json:"contacts"`
	Conversations  int   `json:"conversations"`
	Versions       int   `json:"versions"`
	RecentActivity int   `json:"recentActivity"`
}

// Ack is the reply to out-of-band updates. Those updates cannot fail.
type Ack struct {
	Success bool `json:"success"`
}
