package usecases

import (
	"context"
	"errors"
	"time"

	"tank-gateway/entities"
	"tank-gateway/protocol"
	"tank-gateway/repositories"

	"github.com/rs/zerolog"
)

// Presence turns device activity into online/offline status, persisted on
// the device record and announced to observers.
type Presence struct {
	tracker  *ActivityTracker
	devices  repositories.DeviceRepository
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

func NewPresence(devices repositories.DeviceRepository, n Notifier, now func() time.Time, lg zerolog.Logger) *Presence {
	if now == nil {
		now = time.Now
	}
	if n == nil {
		n = nopNotifier{}
	}
	return &Presence{
		tracker:  NewActivityTracker(),
		devices:  devices,
		notifier: n,
		now:      now,
		log:      lg.With().Str("component", "presence").Logger(),
	}
}

func (p *Presence) Tracker() *ActivityTracker { return p.tracker }

// Seen records activity from deviceID.
func (p *Presence) Seen(ctx context.Context, deviceID string) {
	now := p.now()
	if p.tracker.Touch(deviceID, now) {
		p.transition(ctx, deviceID, entities.DeviceStatusOnline, protocol.StatusDeviceOnline, now, "")
	}
}

// Gone marks deviceID offline right away, e.g. when its stream closes.
func (p *Presence) Gone(ctx context.Context, deviceID, reason string) {
	if p.tracker.MarkOffline(deviceID) {
		p.transition(ctx, deviceID, entities.DeviceStatusOffline, protocol.StatusDeviceOffline, p.now(), reason)
	}
}

// Expire marks offline every device silent for longer than after.
func (p *Presence) Expire(ctx context.Context, after time.Duration) []string {
	now := p.now()
	gone := p.tracker.Expire(now, after)
	for _, id := range gone {
		last, _ := p.tracker.LastSeen(id)
		p.transition(ctx, id, entities.DeviceStatusOffline, protocol.StatusDeviceOffline, last, "timeout")
	}
	return gone
}

func (p *Presence) transition(ctx context.Context, deviceID, status, event string, seenAt time.Time, reason string) {
	err := p.devices.UpdateDeviceStatus(ctx, deviceID, status, seenAt)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		// Devices served from the static table have no record to update.
	case err != nil:
		p.log.Error().Err(err).Str("device_id", deviceID).Str("status", status).Msg("persist device status")
	}

	p.notifier.BroadcastToObservers(protocol.SystemStatus{
		Event:    event,
		DeviceID: deviceID,
		Status:   status,
		Reason:   reason,
	})
	p.log.Info().Str("device_id", deviceID).Str("status", status).Str("reason", reason).Msg("device presence changed")
}
