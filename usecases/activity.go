package usecases

import (
	"sort"
	"sync"
	"time"
)

type presence struct {
	lastSeen time.Time
	online   bool
}

// ActivityTracker records when each device was last heard from, over any
// transport, and derives online/offline transitions from it.
type ActivityTracker struct {
	mu      sync.Mutex
	devices map[string]*presence
}

func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{devices: make(map[string]*presence)}
}

// Touch records activity and reports whether the device just came online.
func (t *ActivityTracker) Touch(deviceID string, at time.Time) (cameOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.devices[deviceID]
	if !ok {
		p = &presence{}
		t.devices[deviceID] = p
	}
	if at.After(p.lastSeen) {
		p.lastSeen = at
	}
	cameOnline = !p.online
	p.online = true
	return cameOnline
}

// MarkOffline reports whether the device was online until now.
func (t *ActivityTracker) MarkOffline(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.devices[deviceID]
	if !ok || !p.online {
		return false
	}
	p.online = false
	return true
}

// Expire marks offline every online device silent for longer than after and
// returns their ids, sorted.
func (t *ActivityTracker) Expire(now time.Time, after time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var gone []string
	for id, p := range t.devices {
		if p.online && now.Sub(p.lastSeen) > after {
			p.online = false
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone
}

func (t *ActivityTracker) LastSeen(deviceID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.devices[deviceID]
	if !ok {
		return time.Time{}, false
	}
	return p.lastSeen, true
}

func (t *ActivityTracker) Online(deviceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.devices[deviceID]
	return ok && p.online
}
