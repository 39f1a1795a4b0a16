package ws

import (
	"errors"
	"sort"
	"sync"

	"tank-gateway/metrics"
	"tank-gateway/protocol"

	"github.com/rs/zerolog"
)

var ErrSendDropped = errors.New("send buffer full or connection closed")

// Manager keeps track of live device and observer connections.
type Manager struct {
	mu        sync.RWMutex
	all       map[*Connection]struct{}
	devices   map[string]*Connection // deviceID -> most recently registered conn
	observers map[*Connection]struct{}

	log     zerolog.Logger
	metrics *metrics.Gateway
}

func NewManager(lg zerolog.Logger, m *metrics.Gateway) *Manager {
	return &Manager{
		all:       make(map[*Connection]struct{}),
		devices:   make(map[string]*Connection),
		observers: make(map[*Connection]struct{}),
		log:       lg.With().Str("component", "ws").Logger(),
		metrics:   m,
	}
}

// Add tracks a freshly upgraded connection that has not identified itself.
func (m *Manager) Add(c *Connection) {
	m.mu.Lock()
	m.all[c] = struct{}{}
	m.mu.Unlock()
}

// RegisterDevice binds c to deviceID. A previous connection for the same id
// stops receiving pushes but is left open; it is returned so the caller can
// log it.
func (m *Manager) RegisterDevice(c *Connection, deviceID, deviceType string) (superseded *Connection) {
	previousID := c.DeviceID()
	previous := c.setIdentity(RoleDevice, deviceID, deviceType)

	m.mu.Lock()
	m.all[c] = struct{}{}
	delete(m.observers, c)
	if previous == RoleDevice && previousID != deviceID && m.devices[previousID] == c {
		delete(m.devices, previousID)
	}
	if old, ok := m.devices[deviceID]; ok && old != c {
		superseded = old
	}
	m.devices[deviceID] = c
	m.mu.Unlock()

	m.roleChanged(previous, RoleDevice)
	m.log.Info().Str("device_id", deviceID).Str("device_type", deviceType).Str("conn", c.ID).Msg("device registered")
	if superseded != nil {
		m.log.Warn().Str("device_id", deviceID).Str("stale_conn", superseded.ID).Msg("device reconnected, previous stream superseded")
	}
	return superseded
}

// RegisterObserver marks c as a dashboard connection.
func (m *Manager) RegisterObserver(c *Connection) {
	previousID := c.DeviceID()
	previous := c.setIdentity(RoleObserver, "", "")

	m.mu.Lock()
	m.all[c] = struct{}{}
	if previous == RoleDevice && m.devices[previousID] == c {
		delete(m.devices, previousID)
	}
	m.observers[c] = struct{}{}
	m.mu.Unlock()

	m.roleChanged(previous, RoleObserver)
	m.log.Debug().Str("conn", c.ID).Msg("observer registered")
}

func (m *Manager) roleChanged(from, to Role) {
	if from == to {
		return
	}
	if from != RolePending {
		m.metrics.ConnectionClosed(string(from))
	}
	m.metrics.ConnectionOpened(string(to))
}

// Unregister forgets c and closes its send queue. It reports whether c was
// the current stream for its device, i.e. whether the device just went away.
func (m *Manager) Unregister(c *Connection) (deviceGone bool) {
	role := c.Role()
	deviceID := c.DeviceID()

	m.mu.Lock()
	_, known := m.all[c]
	delete(m.all, c)
	delete(m.observers, c)
	if role == RoleDevice && m.devices[deviceID] == c {
		delete(m.devices, deviceID)
		deviceGone = true
	}
	m.mu.Unlock()

	c.Close()
	if known && role != RolePending {
		m.metrics.ConnectionClosed(string(role))
	}
	m.log.Debug().Str("conn", c.ID).Str("role", string(role)).Str("device_id", deviceID).Msg("connection unregistered")
	return deviceGone
}

// BroadcastToObservers queues ev on every observer. Devices never receive
// it. A full observer buffer drops the message for that observer only.
func (m *Manager) BroadcastToObservers(ev protocol.ObserverEvent) int {
	data, err := protocol.Encode(ev)
	if err != nil {
		m.log.Error().Err(err).Str("type", ev.MessageType()).Msg("encode broadcast")
		return 0
	}

	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.observers))
	for c := range m.observers {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.SafeSend(data) {
			sent++
			continue
		}
		m.metrics.BroadcastDropped()
		m.log.Warn().Str("conn", c.ID).Str("type", ev.MessageType()).Msg("observer too slow, message dropped")
	}
	return sent
}

// SendToDevice queues ev for the device's current stream. A device without
// a stream is a no-op: sent is false and err is nil.
func (m *Manager) SendToDevice(deviceID string, ev protocol.DeviceEvent) (sent bool, err error) {
	m.mu.RLock()
	c, ok := m.devices[deviceID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := c.Send(ev); err != nil {
		return false, err
	}
	return true, nil
}

// IsConnected returns whether a device is currently connected.
func (m *Manager) IsConnected(deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.devices[deviceID]
	return ok
}

// List returns the connected device ids, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Counts returns the number of registered devices and observers.
func (m *Manager) Counts() (devices, observers int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices), len(m.observers)
}
