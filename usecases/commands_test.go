package usecases

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tank-gateway/entities"
	"tank-gateway/protocol"
	"tank-gateway/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueuePersistsBeforePush(t *testing.T) {
	store := repositories.NewMemoryStore()
	f := newFixture(store, "SUMP_TANK")
	ctx := context.Background()

	cmd, delivered, err := f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandEmergencyStop, map[string]any{"why": "test"}, 0)
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), cmd.TTLAt)

	stored, err := store.GetCommand(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.CommandEmergencyStop, stored.Type)

	pushes := f.rec.pushes("SUMP_TANK")
	require.Len(t, pushes, 1)
	mc, ok := pushes[0].(protocol.MotorCommand)
	require.True(t, ok)
	assert.Equal(t, cmd.ID, mc.CommandID)
	assert.JSONEq(t, `{"why":"test"}`, string(mc.Params))
}

func TestEnqueueOfflineDeviceStaysQueued(t *testing.T) {
	store := repositories.NewMemoryStore()
	f := newFixture(store)
	ctx := context.Background()

	cmd, delivered, err := f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandMotorControl, nil, time.Minute)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.JSONEq(t, `{}`, string(cmd.Payload))

	pending, err := f.queue.Pending(ctx, "SUMP_TANK", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cmd.ID, pending[0].ID)
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture(repositories.NewMemoryStore())
	ctx := context.Background()

	_, _, err := f.queue.Enqueue(ctx, "", entities.CommandMotorControl, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, _, err = f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandType("self_destruct"), nil, 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, _, err = f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandMotorControl, func() {}, 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestEnqueueSurfacesPersistenceFailure(t *testing.T) {
	f := newFixture(brokenStore{repositories.NewMemoryStore()}, "SUMP_TANK")

	_, _, err := f.queue.Enqueue(context.Background(), "SUMP_TANK", entities.CommandEmergencyStop, nil, 0)
	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, f.rec.pushes("SUMP_TANK"), "nothing is pushed unless it was stored")
}

func TestExpiredCommandIsNeverDeliverable(t *testing.T) {
	f := newFixture(repositories.NewMemoryStore())
	ctx := context.Background()

	cmd, _, err := f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandMotorControl, nil, time.Minute)
	require.NoError(t, err)
	assert.True(t, f.queue.Deliverable(cmd))

	f.clock.Advance(time.Minute)
	assert.False(t, f.queue.Deliverable(cmd), "deadline itself is dead")
	assert.False(t, cmd.Acknowledged)

	pending, err := f.queue.Pending(ctx, "SUMP_TANK", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Acknowledging an expired command is a silent success.
	require.NoError(t, f.queue.Acknowledge(ctx, "SUMP_TANK", cmd.ID))
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	store := repositories.NewMemoryStore()
	f := newFixture(store)
	ctx := context.Background()

	cmd, _, err := f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandMotorControl, nil, 0)
	require.NoError(t, err)

	require.NoError(t, f.queue.Acknowledge(ctx, "SUMP_TANK", cmd.ID))
	require.NoError(t, f.queue.Acknowledge(ctx, "SUMP_TANK", cmd.ID))

	stored, err := store.GetCommand(ctx, cmd.ID)
	require.NoError(t, err)
	assert.True(t, stored.Acknowledged)
	assert.Equal(t, 0, stored.RetryCount)
	assert.False(t, f.queue.Deliverable(stored))

	acks := 0
	for _, b := range f.rec.broadcasts {
		if s, ok := b.(protocol.SystemStatus); ok && s.Event == protocol.StatusCommandAcked {
			acks++
		}
	}
	assert.Equal(t, 1, acks)

	err = f.queue.Acknowledge(ctx, "SUMP_TANK", "no-such-command")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAcknowledgeRejectsOtherDevices(t *testing.T) {
	store := repositories.NewMemoryStore()
	f := newFixture(store)
	ctx := context.Background()

	cmd, _, err := f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandEmergencyStop, nil, 0)
	require.NoError(t, err)

	err = f.queue.Acknowledge(ctx, "TOP_TANK", cmd.ID)
	require.ErrorIs(t, err, repositories.ErrNotFound)

	stored, err := store.GetCommand(ctx, cmd.ID)
	require.NoError(t, err)
	assert.False(t, stored.Acknowledged)

	pending, err := f.queue.Pending(ctx, "SUMP_TANK", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, cmd.ID, pending[0].ID)
}

func TestPendingOrderAndDevice(t *testing.T) {
	f := newFixture(repositories.NewMemoryStore())
	ctx := context.Background()

	first, _, err := f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandMotorControl, map[string]any{"n": 1}, 0)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, _, err := f.queue.Enqueue(ctx, "SUMP_TANK", entities.CommandMotorControl, map[string]any{"n": 2}, 0)
	require.NoError(t, err)
	_, _, err = f.queue.Enqueue(ctx, "TOP_TANK", entities.CommandMotorControl, nil, 0)
	require.NoError(t, err)

	pending, err := f.queue.Pending(ctx, "SUMP_TANK", 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	var params map[string]int
	require.NoError(t, json.Unmarshal(pending[1].Payload, &params))
	assert.Equal(t, 2, params["n"])
}
