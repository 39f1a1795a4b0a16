package httpHandler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"tank-gateway/entities"
	"tank-gateway/protocol"
	"tank-gateway/repositories"
	"tank-gateway/usecases"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type CommandHandler struct {
	queue    *usecases.CommandQueue
	control  *usecases.Control
	notifier usecases.Notifier
	log      zerolog.Logger
}

func NewCommandHandler(q *usecases.CommandQueue, ctl *usecases.Control, n usecases.Notifier, lg zerolog.Logger) *CommandHandler {
	return &CommandHandler{queue: q, control: ctl, notifier: n, log: lg.With().Str("component", "http").Logger()}
}

type commandView struct {
	ID        string               `json:"id"`
	CommandID string               `json:"command_id"`
	DeviceID  string               `json:"device_id"`
	Command   entities.CommandType `json:"command"`
	Params    any                  `json:"params"`
	CreatedAt string               `json:"created_at"`
	ExpiresAt string               `json:"expires_at"`
}

func viewOf(cmd *entities.MotorCommand) commandView {
	return commandView{
		ID:        cmd.ID,
		CommandID: cmd.ID,
		DeviceID:  cmd.DeviceID,
		Command:   cmd.Type,
		Params:    cmd.Payload,
		CreatedAt: cmd.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: cmd.TTLAt.UTC().Format(time.RFC3339),
	}
}

// GET /api/commands/pending?limit=
// The authenticated device pulls commands it has not acknowledged yet.
func (h *CommandHandler) Pending(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	deviceID := c.GetString(ctxDeviceID)
	cmds, err := h.queue.Pending(c.Request.Context(), deviceID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", deviceID).Msg("pending commands")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}

	out := make([]commandView, 0, len(cmds))
	for i := range cmds {
		out = append(out, viewOf(&cmds[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "commands": out, "count": len(out)})
}

// POST /api/commands/:id/ack
func (h *CommandHandler) Ack(c *gin.Context) {
	err := h.queue.Acknowledge(c.Request.Context(), c.GetString(ctxDeviceID), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "command not found"})
	case errors.Is(err, usecases.ErrInvalidCommand):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "command id required"})
	default:
		h.log.Error().Err(err).Str("command_id", c.Param("id")).Msg("acknowledge command")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}

type enqueueReq struct {
	DeviceID   string               `json:"device_id"`
	Type       entities.CommandType `json:"type" binding:"required"`
	Payload    map[string]any       `json:"payload"`
	TTLSeconds int                  `json:"ttl_seconds"`
}

// POST /api/v1/commands
// Observer-initiated command. 201 only once it is durably queued.
func (h *CommandHandler) Enqueue(c *gin.Context) {
	var req enqueueReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	cmd, delivered, err := h.control.Submit(c.Request.Context(), req.DeviceID, req.Type, req.Payload, req.TTLSeconds)
	switch {
	case errors.Is(err, usecases.ErrInvalidCommand):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "command_not_queued"})
		return
	}

	h.notifier.BroadcastToObservers(protocol.SystemStatus{
		Event:     protocol.StatusCommandQueued,
		DeviceID:  cmd.DeviceID,
		CommandID: cmd.ID,
		Delivered: &delivered,
	})
	status := "queued"
	if delivered {
		status = "sent"
	}
	c.JSON(http.StatusCreated, gin.H{"status": status, "delivered": delivered, "command": viewOf(cmd)})
}
