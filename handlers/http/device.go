package httpHandler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tank-gateway/repositories"
	"tank-gateway/usecases"
	"tank-gateway/ws"

	"github.com/gin-gonic/gin"
)

// DeviceHandler exposes connection and presence state to dashboards.
type DeviceHandler struct {
	store    repositories.Store
	mgr      *ws.Manager
	activity *usecases.ActivityTracker
	started  time.Time
}

func NewDeviceHandler(store repositories.Store, mgr *ws.Manager, activity *usecases.ActivityTracker) *DeviceHandler {
	return &DeviceHandler{store: store, mgr: mgr, activity: activity, started: time.Now()}
}

// GET /api/v1/devices/connected
func (h *DeviceHandler) GetConnectedDevices(c *gin.Context) {
	ids := h.mgr.List()
	c.JSON(http.StatusOK, gin.H{"devices": ids, "count": len(ids)})
}

// GET /api/v1/devices/:id
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	id := c.Param("id")
	resp := gin.H{
		"device_id": id,
		"connected": h.mgr.IsConnected(id),
		"online":    h.activity.Online(id),
	}
	if seen, ok := h.activity.LastSeen(id); ok {
		resp["last_activity_at"] = seen.UTC()
	}

	d, err := h.store.GetDevice(c.Request.Context(), id)
	switch {
	case err == nil:
		resp["device"] = d
	case errors.Is(err, repositories.ErrNotFound):
		if _, seen := resp["last_activity_at"]; !seen {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return
		}
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve device"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/v1/alerts/:id/ack
func (h *DeviceHandler) AcknowledgeAlert(c *gin.Context) {
	err := h.store.AcknowledgeAlert(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to acknowledge alert"})
	}
}

// GET /health
// Liveness only; it never requires device credentials.
func (h *DeviceHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "connected"
	if err := h.store.Ping(ctx); err != nil {
		database = "disconnected"
	}
	devices, observers := h.mgr.Counts()
	c.JSON(http.StatusOK, gin.H{
		"status":         "OK",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"database":       database,
		"connections": gin.H{
			"devices":   devices,
			"observers": observers,
		},
	})
}
