package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/broadcast"
	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Hub interface {
	Connect(id string) *broadcast.Connection
	Disconnect(id string)
}

const keepAliveInterval = 30 * time.Second

type StreamHandler struct {
	hub       Hub
	instances func() []models.InstanceInfo
}

func NewStreamHandler(hub Hub, instances func() []models.InstanceInfo) *StreamHandler {
	return &StreamHandler{hub: hub, instances: instances}
}

// Stream serves broadcasts as server-sent events. New subscribers get their
// id and the current instance list first.
func (sh *StreamHandler) Stream(c *gin.Context) {
	connID := uuid.New().String()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	conn := sh.hub.Connect(connID)
	defer sh.hub.Disconnect(connID)

	writeEvent(c, models.Message{Type: "connected", Payload: map[string]string{"id": connID}})
	if sh.instances != nil {
		writeEvent(c, models.Message{Type: models.BroadcastInstancesUpdated, Payload: sh.instances()})
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-conn.SendCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeEvent(c *gin.Context, msg models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}
