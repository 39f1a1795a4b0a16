package repositories

import (
	"context"
	"testing"
	"time"

	"tank-gateway/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreDevices(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(entities.Device{ID: "SUMP_TANK", LegacyID: "ESP32_SUMP_002", APIKey: "k", IsActive: true})

	d, err := s.GetDevice(ctx, "SUMP_TANK")
	require.NoError(t, err)
	assert.Equal(t, "k", d.APIKey)

	d, err = s.GetDeviceByLegacyID(ctx, "ESP32_SUMP_002")
	require.NoError(t, err)
	assert.Equal(t, "SUMP_TANK", d.ID)

	_, err = s.GetDevice(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	seen := time.Now()
	require.NoError(t, s.UpdateDeviceStatus(ctx, "SUMP_TANK", entities.DeviceStatusOnline, seen))
	d, _ = s.GetDevice(ctx, "SUMP_TANK")
	assert.Equal(t, entities.DeviceStatusOnline, d.Status)
	require.NotNil(t, d.LastSeenAt)

	require.ErrorIs(t, s.UpdateDeviceStatus(ctx, "ghost", "online", seen), ErrNotFound)
}

func TestMemoryStoreLatestReading(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.LatestReading(ctx, entities.TankTop)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveReading(ctx, &entities.SensorReading{TankType: entities.TankTop, LevelPercentage: 10, Timestamp: base}))
	require.NoError(t, s.SaveReading(ctx, &entities.SensorReading{TankType: entities.TankTop, LevelPercentage: 40, Timestamp: base.Add(time.Minute)}))
	require.NoError(t, s.SaveReading(ctx, &entities.SensorReading{TankType: entities.TankSump, LevelPercentage: 70, Timestamp: base.Add(2 * time.Minute)}))

	r, err := s.LatestReading(ctx, entities.TankTop)
	require.NoError(t, err)
	assert.InDelta(t, 40, r.LevelPercentage, 0.001)
	assert.NotEmpty(t, r.ID)
}

func TestMemoryStorePendingCommands(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	live := &entities.MotorCommand{DeviceID: "SUMP_TANK", Type: entities.CommandMotorControl, CreatedAt: now, TTLAt: now.Add(time.Minute)}
	expired := &entities.MotorCommand{DeviceID: "SUMP_TANK", Type: entities.CommandMotorControl, CreatedAt: now, TTLAt: now.Add(-time.Second)}
	other := &entities.MotorCommand{DeviceID: "TOP_TANK", Type: entities.CommandEmergencyStop, CreatedAt: now, TTLAt: now.Add(time.Minute)}
	for _, c := range []*entities.MotorCommand{live, expired, other} {
		require.NoError(t, s.SaveCommand(ctx, c))
	}

	pending, err := s.PendingCommands(ctx, "SUMP_TANK", now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, live.ID, pending[0].ID)

	require.NoError(t, s.AcknowledgeCommand(ctx, live.ID))
	require.NoError(t, s.AcknowledgeCommand(ctx, live.ID))

	pending, err = s.PendingCommands(ctx, "SUMP_TANK", now, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemoryStoreAlerts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := &entities.Alert{ESP32ID: "TOP_TANK", AlertType: "low_level", Message: "low"}
	require.NoError(t, s.SaveAlert(ctx, a))
	require.NoError(t, s.AcknowledgeAlert(ctx, a.ID))

	alerts := s.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Acknowledged)

	require.ErrorIs(t, s.AcknowledgeAlert(ctx, "missing"), ErrNotFound)
}
