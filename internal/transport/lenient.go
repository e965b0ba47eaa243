package transport

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

// fields is a payload decoded without a schema. Accessors return zero values
// for missing keys or values of the wrong kind.
type fields map[string]any

// decodePayload decodes f into T. When the typed decode fails the payload is
// read field by field so the notification is still delivered with defaults.
func decodePayload[T any](f frame, from func(fields) T) T {
	var p T
	err := f.decode(&p)
	if err == nil {
		return p
	}
	var m fields
	if ferr := f.decode(&m); ferr != nil {
		m = fields{}
	}
	logger.Log.Warn("Malformed transport payload, using defaults", "type", f.Type, "err", err)
	return from(m)
}

func (m fields) str(key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (m fields) num(key string) float64 {
	return toFloat(m[key])
}

func (m fields) integer(key string) int {
	n := m.num(key)
	if n >= float64(math.MaxInt) || n <= float64(math.MinInt) {
		return 0
	}
	return int(n)
}

func (m fields) obj(key string) fields {
	return toFields(m[key])
}

func toFloat(v any) float64 {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int8:
		n = float64(x)
	case int16:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint:
		n = float64(x)
	case uint8:
		n = float64(x)
	case uint16:
		n = float64(x)
	case uint32:
		n = float64(x)
	case uint64:
		n = float64(x)
	case json.Number:
		n, _ = x.Float64()
	case string:
		n, _ = strconv.ParseFloat(x, 64)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func toFields(v any) fields {
	switch x := v.(type) {
	case map[string]any:
		return fields(x)
	case fields:
		return x
	case map[any]any:
		out := make(fields, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}

// errorText renders an error reported as a string, an object with a message
// key, or anything else.
func errorText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	if obj := toFields(v); obj != nil {
		if msg := obj.str("message"); msg != "" {
			return msg
		}
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

func openedFrom(m fields) models.ConnectionOpened {
	return models.ConnectionOpened{
		ConnectionID: m.str("connectionId"),
		InstanceID:   m.str("instanceId"),
	}
}

func closedFrom(m fields) models.ConnectionClosed {
	return models.ConnectionClosed{
		ConnectionID: m.str("connectionId"),
		InstanceID:   m.str("instanceId"),
		Code:         m.integer("code"),
		Duration:     int64(m.num("duration")),
	}
}

func errorFrom(m fields) models.ConnectionError {
	p := models.ConnectionError{
		ConnectionID: m.str("connectionId"),
		InstanceID:   m.str("instanceId"),
	}
	if raw, ok := m["error"]; ok && raw != nil {
		p.Error = &models.ErrorDetail{Message: errorText(raw)}
	}
	return p
}

func progressFrom(m fields) models.ProgressSnapshot {
	return models.ProgressSnapshot{
		ConnectionID:     m.str("connectionId"),
		InstanceID:       m.str("instanceId"),
		ObjectsProcessed: m.integer("objectsProcessed"),
		QueueSize:        m.integer("queueSize"),
	}
}

func completedFrom(m fields) models.SyncCompleted {
	p := models.SyncCompleted{
		ConnectionID: m.str("connectionId"),
		InstanceID:   m.str("instanceId"),
	}
	res := m.obj("result")
	if res == nil {
		return p
	}
	p.Result = &models.SyncResult{
		ObjectsSent:     res.integer("objectsSent"),
		ObjectsReceived: res.integer("objectsReceived"),
	}
	switch errs := res["errors"].(type) {
	case []any:
		for _, e := range errs {
			p.Result.Errors = append(p.Result.Errors, errorText(e))
		}
	case nil:
	default:
		p.Result.Errors = []string{errorText(errs)}
	}
	return p
}
