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

func TestControlTranslatesObserverMessages(t *testing.T) {
	f := newFixture(repositories.NewMemoryStore(), "SUMP_TANK")
	ctl := NewControl(f.queue, "SUMP_TANK")
	ctx := context.Background()

	tests := []struct {
		name string
		msg  protocol.ObserverMessage
		want map[string]any
	}{
		{"motor on", protocol.MotorControl{State: true}, map[string]any{"action": "start", "manual": true, "source": "observer"}},
		{"motor off", protocol.MotorControl{State: false}, map[string]any{"action": "stop", "manual": true, "source": "observer"}},
		{"auto mode", protocol.AutoModeControl{Enabled: true}, map[string]any{"auto_mode_enabled": true, "source": "observer"}},
		{"reset", protocol.ResetManual{}, map[string]any{"reset_manual": true, "source": "observer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, delivered, err := ctl.Handle(ctx, tt.msg)
			require.NoError(t, err)
			assert.True(t, delivered)
			assert.Equal(t, "SUMP_TANK", cmd.DeviceID)
			assert.Equal(t, entities.CommandMotorControl, cmd.Type)

			var got map[string]any
			require.NoError(t, json.Unmarshal(cmd.Payload, &got))
			assert.Equal(t, tt.want, got)
		})
	}

	_, _, err := ctl.Handle(ctx, protocol.Register{})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestControlSubmit(t *testing.T) {
	f := newFixture(repositories.NewMemoryStore())
	ctl := NewControl(f.queue, "SUMP_TANK")

	cmd, delivered, err := ctl.Submit(context.Background(), "", entities.CommandEmergencyStop, nil, 30)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, "SUMP_TANK", cmd.DeviceID)
	assert.Equal(t, cmd.CreatedAt.Add(30*time.Second), cmd.TTLAt)

	_, _, err = ctl.Submit(context.Background(), "SUMP_TANK", "launch", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	f2 := newFixture(brokenStore{repositories.NewMemoryStore()})
	_, _, err = NewControl(f2.queue, "SUMP_TANK").Submit(context.Background(), "", entities.CommandEmergencyReset, nil, 0)
	assert.ErrorIs(t, err, ErrPersistence)
}
