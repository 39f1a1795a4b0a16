package usecases

import (
	"context"
	"errors"
	"sync"
	"time"

	"tank-gateway/decision"
	"tank-gateway/entities"
	"tank-gateway/protocol"
	"tank-gateway/repositories"

	"github.com/rs/zerolog"
)

// recorder stands in for the connection registry.
type recorder struct {
	mu         sync.Mutex
	connected  map[string]bool
	pushed     map[string][]protocol.DeviceEvent
	broadcasts []protocol.ObserverEvent
}

func newRecorder(connected ...string) *recorder {
	r := &recorder{connected: make(map[string]bool), pushed: make(map[string][]protocol.DeviceEvent)}
	for _, id := range connected {
		r.connected[id] = true
	}
	return r
}

func (r *recorder) SendToDevice(deviceID string, ev protocol.DeviceEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected[deviceID] {
		return false, nil
	}
	r.pushed[deviceID] = append(r.pushed[deviceID], ev)
	return true, nil
}

func (r *recorder) BroadcastToObservers(ev protocol.ObserverEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, ev)
	return 1
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.broadcasts))
	for _, b := range r.broadcasts {
		out = append(out, b.MessageType())
	}
	return out
}

func (r *recorder) pushes(deviceID string) []protocol.DeviceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.DeviceEvent(nil), r.pushed[deviceID]...)
}

var errDiskFull = errors.New("disk full")

// brokenStore fails every write.
type brokenStore struct {
	*repositories.MemoryStore
}

func (brokenStore) SaveReading(context.Context, *entities.SensorReading) error { return errDiskFull }
func (brokenStore) SaveMotorEvent(context.Context, *entities.MotorEvent) error { return errDiskFull }
func (brokenStore) SaveAlert(context.Context, *entities.Alert) error           { return errDiskFull }
func (brokenStore) SaveCommand(context.Context, *entities.MotorCommand) error  { return errDiskFull }
func (brokenStore) UpdateDeviceStatus(context.Context, string, string, time.Time) error {
	return errDiskFull
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    repositories.Store
	rec      *recorder
	clock    *clock
	queue    *CommandQueue
	presence *Presence
	pipeline *Pipeline
}

func newFixture(store repositories.Store, connected ...string) *fixture {
	rec := newRecorder(connected...)
	clk := newClock()
	queue := NewCommandQueue(store, rec, QueueOptions{
		TTL:      5 * time.Minute,
		Notifier: rec,
		Now:      clk.Now,
		Logger:   zerolog.Nop(),
	})
	presence := NewPresence(store, rec, clk.Now, zerolog.Nop())
	pipeline := NewPipeline(store, rec, queue, decision.NewEngine("SUMP_TANK"), presence, PipelineOptions{
		Now:    clk.Now,
		Logger: zerolog.Nop(),
	})
	return &fixture{store: store, rec: rec, clock: clk, queue: queue, presence: presence, pipeline: pipeline}
}
