package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tank-gateway/entities"
	"tank-gateway/metrics"
	"tank-gateway/protocol"
	"tank-gateway/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

const defaultPendingLimit = 10

// CommandQueue persists commands and then tries a live push. Persistence
// always comes first so a device that is offline right now can still pull
// the command when it reconnects.
type CommandQueue struct {
	repo       repositories.CommandRepository
	dispatcher Dispatcher
	notifier   Notifier
	ttl        time.Duration
	now        func() time.Time
	log        zerolog.Logger
	metrics    *metrics.Gateway
}

type QueueOptions struct {
	TTL      time.Duration
	Notifier Notifier
	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  *metrics.Gateway
}

func NewCommandQueue(repo repositories.CommandRepository, d Dispatcher, opts QueueOptions) *CommandQueue {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &CommandQueue{
		repo:       repo,
		dispatcher: d,
		notifier:   opts.Notifier,
		ttl:        opts.TTL,
		now:        opts.Now,
		log:        opts.Logger.With().Str("component", "commands").Logger(),
		metrics:    opts.Metrics,
	}
}

// Enqueue stores a command for deviceID and pushes it if the device is
// connected. delivered reports whether the push was queued on a live stream;
// a failed push never fails the call. ttl <= 0 uses the queue default.
func (q *CommandQueue) Enqueue(ctx context.Context, deviceID string, t entities.CommandType, payload any, ttl time.Duration) (cmd *entities.MotorCommand, delivered bool, err error) {
	if deviceID == "" {
		return nil, false, fmt.Errorf("%w: device_id is required", ErrInvalidCommand)
	}
	if !t.Valid() {
		return nil, false, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, t)
	}
	if ttl <= 0 {
		ttl = q.ttl
	}

	body := []byte("{}")
	if payload != nil {
		if body, err = json.Marshal(payload); err != nil {
			return nil, false, fmt.Errorf("%w: payload: %v", ErrInvalidCommand, err)
		}
	}

	now := q.now().UTC()
	cmd = &entities.MotorCommand{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Type:      t,
		Payload:   datatypes.JSON(body),
		CreatedAt: now,
		TTLAt:     now.Add(ttl),
	}
	if err := q.repo.SaveCommand(ctx, cmd); err != nil {
		q.metrics.PersistenceError("save_command")
		q.log.Error().Err(err).Str("device_id", deviceID).Str("type", string(t)).Msg("command not queued")
		return nil, false, fmt.Errorf("%w: save command: %v", ErrPersistence, err)
	}
	q.metrics.CommandEnqueued(string(t))

	delivered = q.push(cmd)
	q.log.Info().
		Str("command_id", cmd.ID).
		Str("device_id", deviceID).
		Str("type", string(t)).
		Bool("delivered", delivered).
		Msg("command queued")
	return cmd, delivered, nil
}

func (q *CommandQueue) push(cmd *entities.MotorCommand) bool {
	sent, err := q.dispatcher.SendToDevice(cmd.DeviceID, protocol.NewMotorCommand(cmd))
	switch {
	case err == nil && sent:
		q.metrics.CommandPushed("sent")
		return true
	case err == nil:
		q.metrics.CommandPushed("offline")
	default:
		q.metrics.CommandPushed("failed")
		q.log.Warn().Err(err).Str("command_id", cmd.ID).Msg("live push failed, command stays queued")
	}
	return false
}

// Acknowledge marks a command done on behalf of deviceID. Acknowledging an
// acknowledged or expired command is a silent success. An unknown id, or a
// command addressed to another device, is repositories.ErrNotFound.
func (q *CommandQueue) Acknowledge(ctx context.Context, deviceID, commandID string) error {
	if commandID == "" {
		return fmt.Errorf("%w: command_id is required", ErrInvalidCommand)
	}
	cmd, err := q.repo.GetCommand(ctx, commandID)
	if errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if err != nil {
		q.metrics.PersistenceError("get_command")
		return fmt.Errorf("%w: get command: %v", ErrPersistence, err)
	}
	if cmd.DeviceID != deviceID {
		q.log.Warn().Str("device_id", deviceID).Str("command_id", commandID).Msg("ack for a command addressed elsewhere")
		return fmt.Errorf("command %s: %w", commandID, repositories.ErrNotFound)
	}
	if !q.Deliverable(cmd) {
		return nil
	}

	if err := q.repo.AcknowledgeCommand(ctx, commandID); err != nil {
		q.metrics.PersistenceError("ack_command")
		return fmt.Errorf("%w: acknowledge command: %v", ErrPersistence, err)
	}
	q.notifier.BroadcastToObservers(protocol.SystemStatus{
		Event:     protocol.StatusCommandAcked,
		DeviceID:  cmd.DeviceID,
		CommandID: cmd.ID,
	})
	q.log.Debug().Str("command_id", commandID).Msg("command acknowledged")
	return nil
}

// Deliverable reports whether cmd may still be handed to its device.
func (q *CommandQueue) Deliverable(cmd *entities.MotorCommand) bool {
	return cmd.Deliverable(q.now())
}

// Pending returns the commands a device should still execute, oldest first.
func (q *CommandQueue) Pending(ctx context.Context, deviceID string, limit int) ([]entities.MotorCommand, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	cmds, err := q.repo.PendingCommands(ctx, deviceID, q.now(), limit)
	if err != nil {
		q.metrics.PersistenceError("pending_commands")
		return nil, fmt.Errorf("%w: pending commands: %v", ErrPersistence, err)
	}
	// The store filters by TTL too; re-check against our own clock.
	out := cmds[:0]
	for i := range cmds {
		if q.Deliverable(&cmds[i]) {
			out = append(out, cmds[i])
		}
	}
	return out, nil
}
