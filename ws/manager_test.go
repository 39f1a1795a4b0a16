package ws

import (
	"encoding/json"
	"sync"
	"testing"

	"tank-gateway/entities"
	"tank-gateway/metrics"
	"tank-gateway/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(zerolog.Nop(), nil)
}

func drain(c *Connection) []string {
	var types []string
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return types
			}
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err == nil {
				types = append(types, env.Type)
			}
		default:
			return types
		}
	}
}

func TestBroadcastSkipsDevices(t *testing.T) {
	m := newTestManager()
	device := NewConnection(nil)
	observer := NewConnection(nil)
	pending := NewConnection(nil)

	m.Add(pending)
	m.RegisterDevice(device, "SUMP_TANK", "sump_tank")
	m.RegisterObserver(observer)

	n := m.BroadcastToObservers(protocol.TankReading{SensorReading: entities.SensorReading{TankType: entities.TankTop}})
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{protocol.TypeTankReading}, drain(observer))
	assert.Empty(t, drain(device))
	assert.Empty(t, drain(pending))
}

func TestSendToDevice(t *testing.T) {
	m := newTestManager()

	sent, err := m.SendToDevice("SUMP_TANK", protocol.Pong{})
	require.NoError(t, err, "absent device is not an error")
	assert.False(t, sent)

	device := NewConnection(nil)
	m.RegisterDevice(device, "SUMP_TANK", "sump_tank")
	sent, err = m.SendToDevice("SUMP_TANK", protocol.Pong{ServerTime: 1})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{protocol.TypePong}, drain(device))
	assert.True(t, m.IsConnected("SUMP_TANK"))
}

func TestLastRegisteredDeviceWins(t *testing.T) {
	m := newTestManager()
	first := NewConnection(nil)
	second := NewConnection(nil)

	assert.Nil(t, m.RegisterDevice(first, "TOP_TANK", "top_tank"))
	assert.Same(t, first, m.RegisterDevice(second, "TOP_TANK", "top_tank"))

	sent, err := m.SendToDevice("TOP_TANK", protocol.Pong{})
	require.NoError(t, err)
	require.True(t, sent)
	assert.Empty(t, drain(first))
	assert.Len(t, drain(second), 1)
	assert.False(t, first.Closed(), "stale stream is not closed by the registry")

	// The stale stream going away does not take the device offline.
	assert.False(t, m.Unregister(first))
	assert.True(t, m.IsConnected("TOP_TANK"))
	assert.True(t, m.Unregister(second))
	assert.False(t, m.IsConnected("TOP_TANK"))
}

func TestUnregisterClosesQueue(t *testing.T) {
	m := newTestManager()
	obs := NewConnection(nil)
	m.RegisterObserver(obs)
	m.Unregister(obs)

	assert.True(t, obs.Closed())
	assert.False(t, obs.SafeSend([]byte("x")))
	assert.Equal(t, 0, m.BroadcastToObservers(protocol.SystemStatus{Event: protocol.StatusDeviceOnline}))

	// Double unregister is harmless.
	assert.False(t, m.Unregister(obs))
}

func TestSlowObserverDoesNotBlockOthers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(zerolog.Nop(), metrics.New(reg))
	slow := NewConnection(nil)
	fast := NewConnection(nil)
	m.RegisterObserver(slow)
	m.RegisterObserver(fast)

	for i := 0; i < sendBuffer; i++ {
		require.True(t, slow.SafeSend([]byte("{}")))
	}

	n := m.BroadcastToObservers(protocol.SystemStatus{Event: protocol.StatusDeviceOffline})
	assert.Equal(t, 1, n)
	assert.Len(t, drain(fast), 1)
}

func TestRoleChangeMovesIndexes(t *testing.T) {
	m := newTestManager()
	c := NewConnection(nil)

	m.RegisterObserver(c)
	m.RegisterDevice(c, "TOP_TANK", "top_tank")
	devices, observers := m.Counts()
	assert.Equal(t, 1, devices)
	assert.Equal(t, 0, observers)

	m.RegisterDevice(c, "TOP_TANK_2", "top_tank")
	assert.Equal(t, []string{"TOP_TANK_2"}, m.List())
}

func TestConcurrentRegistration(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewConnection(nil)
			if i%2 == 0 {
				m.RegisterObserver(c)
			} else {
				m.RegisterDevice(c, "DEV", "top_tank")
			}
			m.BroadcastToObservers(protocol.SystemStatus{Event: protocol.StatusDeviceOnline})
			m.Unregister(c)
		}(i)
	}
	wg.Wait()

	devices, observers := m.Counts()
	assert.Equal(t, 0, devices)
	assert.Equal(t, 0, observers)
}
