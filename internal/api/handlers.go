package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Monitor is the query surface served over HTTP.
type Monitor interface {
	ListInstances() []models.InstanceInfo
	GetReplicationEvents(limit int) []models.ReplicationEvent
	GetDataStats() models.DataStats
	UpdateBrowserStorage(info models.StorageInfo) models.Ack
	UpdateDataStats(stats models.DataStats) models.Ack
}

type Handler struct {
	monitor Monitor
	started time.Time
}

func NewHandler(monitor Monitor) *Handler {
	return &Handler{
		monitor: monitor,
		started: time.Now(),
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	resp := models.Message{
		Type: "health_check",
		Payload: models.HealthCheck{
			Status: "Healthy",
			Uptime: int64(time.Since(h.started).Seconds()),
		},
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListInstances(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.ListInstances())
}

func (h *Handler) ListEvents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			logger.Log.Debug("Ignoring invalid limit", "limit", raw)
		} else {
			limit = n
		}
	}
	c.JSON(http.StatusOK, h.monitor.GetReplicationEvents(limit))
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetDataStats())
}

func (h *Handler) UpdateBrowserStorage(c *gin.Context) {
	// Fields that fail to decode keep their zero value; the update still applies.
	var info models.StorageInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		logger.Log.Warn("Malformed browser storage payload, using defaults", "err", err)
	}
	c.JSON(http.StatusOK, h.monitor.UpdateBrowserStorage(info))
}

func (h *Handler) UpdateStats(c *gin.Context) {
	var stats models.DataStats
	if err := c.ShouldBindJSON(&stats); err != nil {
		logger.Log.Warn("Malformed data stats payload, using defaults", "err", err)
	}
	c.JSON(http.StatusOK, h.monitor.UpdateDataStats(stats))
}
