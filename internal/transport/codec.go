package transport

import (
	"encoding/json"
	"fmt"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// frame is an inbound envelope whose payload is decoded lazily, once the
// handler for its type knows the target struct.
type frame struct {
	Type   string
	decode func(v any) error
}

type binaryEnvelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// decodeFrame accepts JSON text frames and msgpack binary frames.
func decodeFrame(messageType int, data []byte) (frame, error) {
	if messageType == websocket.BinaryMessage {
		var env binaryEnvelope
		if err := msgpack.Unmarshal(data, &env); err != nil {
			return frame{}, fmt.Errorf("decode msgpack frame: %w", err)
		}
		return frame{Type: env.Type, decode: func(v any) error {
			if len(env.Payload) == 0 {
				return nil
			}
			return msgpack.Unmarshal(env.Payload, v)
		}}, nil
	}
	var env models.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return frame{}, fmt.Errorf("decode json frame: %w", err)
	}
	return frame{Type: env.Type, decode: func(v any) error {
		if len(env.Payload) == 0 || string(env.Payload) == "null" {
			return nil
		}
		return json.Unmarshal(env.Payload, v)
	}}, nil
}

func encodeFrame(msg models.Message, binary bool) (int, []byte, error) {
	if binary {
		data, err := msgpack.Marshal(msg)
		if err != nil {
			return 0, nil, fmt.Errorf("encode msgpack frame: %w", err)
		}
		return websocket.BinaryMessage, data, nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, nil, fmt.Errorf("encode json frame: %w", err)
	}
	return websocket.TextMessage, data, nil
}

// syntheticClosed builds a closed notification for a connection aged out
// locally.
func syntheticClosed(p models.ConnectionClosed) frame {
	return frame{Type: models.TransportConnectionClosed, decode: func(v any) error {
		out, ok := v.(*models.ConnectionClosed)
		if !ok {
			return fmt.Errorf("synthetic closed frame decoded into %T", v)
		}
		*out = p
		return nil
	}}
}
