package models

import "encoding/json"

// Message is the envelope used on the transport socket and on the UI stream.
type Message struct {
	Type    string `json:"type" msgpack:"type"`
	Payload any    `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// RawMessage is an inbound envelope whose payload is decoded once the type is known.
type RawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HealthCheck struct {
	Status string `json:"sys_status"`
	Uptime int64  `json:"uptime"`
}
