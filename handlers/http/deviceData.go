package httpHandler

import (
	"net/http"

	"tank-gateway/protocol"
	"tank-gateway/usecases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DeviceDataHandler serves the telemetry endpoints firmware posts to.
type DeviceDataHandler struct {
	pipeline *usecases.Pipeline
	log      zerolog.Logger
}

func NewDeviceDataHandler(p *usecases.Pipeline, lg zerolog.Logger) *DeviceDataHandler {
	return &DeviceDataHandler{pipeline: p, log: lg.With().Str("component", "http").Logger()}
}

// POST /api/sensor-data
func (h *DeviceDataHandler) SensorData(c *gin.Context) {
	ingest[protocol.SensorData](h, c)
}

// POST /api/motor-status
func (h *DeviceDataHandler) MotorStatus(c *gin.Context) {
	ingest[protocol.MotorStatus](h, c)
}

// POST /api/heartbeat
func (h *DeviceDataHandler) Heartbeat(c *gin.Context) {
	ingest[protocol.Heartbeat](h, c)
}

// POST /api/system-alert
func (h *DeviceDataHandler) SystemAlert(c *gin.Context) {
	ingest[protocol.DeviceAlert](h, c)
}

// ingest decodes the already authenticated and version-checked body. Storage
// failures still answer 200 so firmware does not enter a retry loop.
func ingest[T protocol.DeviceMessage](h *DeviceDataHandler, c *gin.Context) {
	var msg T
	if body := rawBody(c); len(body) > 0 {
		decoded, err := protocol.DecodeBody[T](body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
			return
		}
		msg = decoded
	}

	deviceID := c.GetString(ctxDeviceID)
	out, err := h.pipeline.Ingest(c.Request.Context(), deviceID, c.GetInt(ctxVersion), msg)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("ingest failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	resp := gin.H{"success": true}
	if out.Command != nil {
		resp["command_id"] = out.Command.ID
	}
	c.JSON(http.StatusOK, resp)
}
