package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"tank-gateway/entities"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It backs DB_DRIVER=memory and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	devices  map[string]entities.Device
	readings []entities.SensorReading
	events   []entities.MotorEvent
	alerts   map[string]entities.Alert
	commands map[string]entities.MotorCommand
}

func NewMemoryStore(devices ...entities.Device) *MemoryStore {
	s := &MemoryStore{
		devices:  make(map[string]entities.Device),
		alerts:   make(map[string]entities.Alert),
		commands: make(map[string]entities.MotorCommand),
	}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	return s
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// PutDevice inserts or replaces a device record.
func (s *MemoryStore) PutDevice(d entities.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d
}

func (s *MemoryStore) GetDevice(_ context.Context, id string) (*entities.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, missing("device", id)
	}
	return &d, nil
}

func (s *MemoryStore) GetDeviceByLegacyID(_ context.Context, legacyID string) (*entities.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.LegacyID != "" && d.LegacyID == legacyID {
			return &d, nil
		}
	}
	return nil, missing("device", legacyID)
}

func (s *MemoryStore) UpdateDeviceStatus(_ context.Context, id, status string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return missing("device", id)
	}
	d.Status = status
	d.LastSeenAt = &seenAt
	s.devices[id] = d
	return nil
}

func (s *MemoryStore) SaveReading(_ context.Context, r *entities.SensorReading) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, *r)
	return nil
}

func (s *MemoryStore) LatestReading(_ context.Context, tankType string) (*entities.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *entities.SensorReading
	for i := range s.readings {
		r := s.readings[i]
		if r.TankType != tankType {
			continue
		}
		if latest == nil || !r.Timestamp.Before(latest.Timestamp) {
			latest = &r
		}
	}
	if latest == nil {
		return nil, missing("reading for tank", tankType)
	}
	return latest, nil
}

// Readings returns a copy of all stored readings.
func (s *MemoryStore) Readings() []entities.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.SensorReading, len(s.readings))
	copy(out, s.readings)
	return out
}

func (s *MemoryStore) SaveMotorEvent(_ context.Context, e *entities.MotorEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *MemoryStore) MotorEvents() []entities.MotorEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.MotorEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) SaveAlert(_ context.Context, a *entities.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryStore) AcknowledgeAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return missing("alert", id)
	}
	a.Acknowledged = true
	s.alerts[id] = a
	return nil
}

func (s *MemoryStore) Alerts() []entities.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *MemoryStore) SaveCommand(_ context.Context, cmd *entities.MotorCommand) error {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd.ID] = *cmd
	return nil
}

func (s *MemoryStore) GetCommand(_ context.Context, id string) (*entities.MotorCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cmd, ok := s.commands[id]
	if !ok {
		return nil, missing("command", id)
	}
	return &cmd, nil
}

func (s *MemoryStore) AcknowledgeCommand(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return nil
	}
	cmd.Acknowledged = true
	s.commands[id] = cmd
	return nil
}

func (s *MemoryStore) PendingCommands(_ context.Context, deviceID string, now time.Time, limit int) ([]entities.MotorCommand, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entities.MotorCommand
	for _, cmd := range s.commands {
		if cmd.DeviceID == deviceID && cmd.Deliverable(now) {
			out = append(out, cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
