package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"tank-gateway/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestDecodeDevice(t *testing.T) {
	msg, err := DecodeDevice([]byte(`{"type":"sensor_data","payload":{"tank_type":"sump_tank","level_percentage":15,"level_liters":150,"esp32_id":"ESP_1","float_switch":true,"timestamp":1700000000}}`))
	require.NoError(t, err)
	sd, ok := msg.(SensorData)
	require.True(t, ok)
	assert.Equal(t, "sump_tank", sd.TankType)
	assert.Equal(t, 15.0, sd.LevelPercentage)
	require.NotNil(t, sd.FloatSwitch)
	assert.True(t, *sd.FloatSwitch)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), sd.Timestamp.Or(time.Time{}))

	msg, err = DecodeDevice([]byte(`{"type":"register","data":{"device_id":"SUMP_TANK","device_type":"sump_tank"}}`))
	require.NoError(t, err)
	assert.Equal(t, Register{DeviceID: "SUMP_TANK", DeviceType: "sump_tank"}, msg)

	msg, err = DecodeDevice([]byte(`{"type":"command_ack","command_id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, CommandAck{CommandID: "abc"}, msg)

	msg, err = DecodeDevice([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	assert.IsType(t, Heartbeat{}, msg)
}

func TestDecodeBodyAcceptsBothShapes(t *testing.T) {
	bodies := map[string]string{
		"flat":    `{"protocol_version":1,"tank_type":"top_tank","level_percentage":33}`,
		"payload": `{"type":"sensor_data","payload":{"protocol_version":1,"tank_type":"top_tank","level_percentage":33}}`,
		"data":    `{"type":"sensor_data","data":{"tank_type":"top_tank","level_percentage":33}}`,
		"untyped": `{"payload":{"tank_type":"top_tank","level_percentage":33}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			sd, err := DecodeBody[SensorData]([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, "top_tank", sd.TankType)
			assert.Equal(t, 33.0, sd.LevelPercentage)
		})
	}

	_, err := DecodeBody[SensorData]([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrBadEnvelope)
	_, err = DecodeBody[SensorData]([]byte(`{"payload":{"level_percentage":"full"}}`))
	assert.ErrorIs(t, err, ErrBadEnvelope)
}

func TestDecodeRejects(t *testing.T) {
	_, err := DecodeDevice([]byte(`{"type":"motor_control","payload":{"state":true}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeObserver([]byte(`{"type":"sensor_data"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeDevice([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrBadEnvelope)

	_, err = DecodeDevice([]byte(`{"type":"sensor_data","payload":{"level_percentage":"high"}}`))
	assert.ErrorIs(t, err, ErrBadEnvelope)
}

func TestDecodeObserver(t *testing.T) {
	msg, err := DecodeObserver([]byte(`{"type":"motor_control","payload":{"state":true}}`))
	require.NoError(t, err)
	assert.Equal(t, MotorControl{State: true}, msg)

	msg, err = DecodeObserver([]byte(`{"type":"auto_mode_control","data":{"enabled":false}}`))
	require.NoError(t, err)
	assert.Equal(t, AutoModeControl{Enabled: false}, msg)

	msg, err = DecodeObserver([]byte(`{"type":"reset_manual"}`))
	require.NoError(t, err)
	assert.Equal(t, ResetManual{}, msg)
}

func TestEncodeMotorCommand(t *testing.T) {
	cmd := &entities.MotorCommand{
		ID:       "cmd-1",
		DeviceID: "SUMP_TANK",
		Type:     entities.CommandMotorControl,
		Payload:  datatypes.JSON(`{"action":"start"}`),
		TTLAt:    time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC),
	}
	raw, err := Encode(NewMotorCommand(cmd))
	require.NoError(t, err)

	var out struct {
		Type    string `json:"type"`
		Payload struct {
			CommandID string          `json:"command_id"`
			Command   string          `json:"command"`
			Params    json.RawMessage `json:"params"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, TypeMotorCommand, out.Type)
	assert.Equal(t, "cmd-1", out.Payload.CommandID)
	assert.Equal(t, "motor_control", out.Payload.Command)
	assert.JSONEq(t, `{"action":"start"}`, string(out.Payload.Params))
}

func TestEncodeTankReadingFlattensEntity(t *testing.T) {
	raw, err := Encode(TankReading{entities.SensorReading{TankType: entities.TankTop, LevelPercentage: 42}})
	require.NoError(t, err)

	var out struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, TypeTankReading, out.Type)
	assert.Equal(t, "top_tank", out.Payload["tank_type"])
	assert.Equal(t, 42.0, out.Payload["level_percentage"])
}
