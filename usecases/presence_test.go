package usecases

import (
	"context"
	"testing"
	"time"

	"tank-gateway/entities"
	"tank-gateway/protocol"
	"tank-gateway/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityTracker(t *testing.T) {
	tr := NewActivityTracker()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, tr.Touch("A", t0))
	assert.False(t, tr.Touch("A", t0.Add(time.Second)))
	assert.False(t, tr.Touch("A", t0), "older activity does not rewind last seen")

	last, ok := tr.LastSeen("A")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Second), last)

	tr.Touch("B", t0.Add(80*time.Second))
	assert.Equal(t, []string{"A"}, tr.Expire(t0.Add(92*time.Second), 90*time.Second))
	assert.Empty(t, tr.Expire(t0.Add(92*time.Second), 90*time.Second), "already offline")
	assert.False(t, tr.Online("A"))
	assert.True(t, tr.Online("B"))

	assert.True(t, tr.MarkOffline("B"))
	assert.False(t, tr.MarkOffline("B"))
	assert.False(t, tr.MarkOffline("unknown"))
	assert.True(t, tr.Touch("B", t0.Add(100*time.Second)), "back online")
}

func TestPresenceTransitions(t *testing.T) {
	store := repositories.NewMemoryStore(devices()...)
	f := newFixture(store)
	ctx := context.Background()

	f.presence.Seen(ctx, "SUMP_TANK")
	f.presence.Seen(ctx, "SUMP_TANK")
	f.presence.Seen(ctx, "STATIC_ONLY")

	d, err := store.GetDevice(ctx, "SUMP_TANK")
	require.NoError(t, err)
	assert.Equal(t, entities.DeviceStatusOnline, d.Status)

	f.clock.Advance(2 * time.Minute)
	gone := f.presence.Expire(ctx, 90*time.Second)
	assert.Equal(t, []string{"STATIC_ONLY", "SUMP_TANK"}, gone)

	d, err = store.GetDevice(ctx, "SUMP_TANK")
	require.NoError(t, err)
	assert.Equal(t, entities.DeviceStatusOffline, d.Status)

	f.presence.Seen(ctx, "TOP_TANK")
	f.presence.Gone(ctx, "TOP_TANK", "disconnected")
	f.presence.Gone(ctx, "TOP_TANK", "disconnected")

	var events []string
	for _, b := range f.rec.broadcasts {
		s := b.(protocol.SystemStatus)
		events = append(events, s.DeviceID+":"+s.Event)
	}
	assert.Equal(t, []string{
		"SUMP_TANK:device_online",
		"STATIC_ONLY:device_online",
		"STATIC_ONLY:device_offline",
		"SUMP_TANK:device_offline",
		"TOP_TANK:device_online",
		"TOP_TANK:device_offline",
	}, events)
}
