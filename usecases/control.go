package usecases

import (
	"context"
	"fmt"

	"tank-gateway/entities"
	"tank-gateway/protocol"
)

// Control turns dashboard requests into commands for the pump controller.
type Control struct {
	queue  *CommandQueue
	pumpID string
}

func NewControl(q *CommandQueue, pumpDeviceID string) *Control {
	return &Control{queue: q, pumpID: pumpDeviceID}
}

// Handle queues the command behind an observer message. Failures are
// returned so the observer learns the command was not durably queued.
func (c *Control) Handle(ctx context.Context, msg protocol.ObserverMessage) (*entities.MotorCommand, bool, error) {
	var payload map[string]any
	switch m := msg.(type) {
	case protocol.MotorControl:
		action := "stop"
		if m.State {
			action = "start"
		}
		payload = map[string]any{"action": action, "manual": true, "source": "observer"}
	case protocol.AutoModeControl:
		payload = map[string]any{"auto_mode_enabled": m.Enabled, "source": "observer"}
	case protocol.ResetManual:
		payload = map[string]any{"reset_manual": true, "source": "observer"}
	default:
		return nil, false, fmt.Errorf("%w: %T is not a control message", ErrInvalidCommand, msg)
	}
	return c.queue.Enqueue(ctx, c.pumpID, entities.CommandMotorControl, payload, 0)
}

// Submit queues an arbitrary command for any device, e.g. an emergency stop.
func (c *Control) Submit(ctx context.Context, deviceID string, t entities.CommandType, payload map[string]any, ttlSeconds int) (*entities.MotorCommand, bool, error) {
	if deviceID == "" {
		deviceID = c.pumpID
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["source"] = "observer"
	return c.queue.Enqueue(ctx, deviceID, t, payload, secondsToDuration(ttlSeconds))
}

func (c *Control) PumpDeviceID() string { return c.pumpID }
