package services

import (
	"context"
	"time"

	"tank-gateway/cache"
	"tank-gateway/usecases"

	"github.com/rs/zerolog"
)

// Monitor periodically expires silent devices and sweeps the auth cache.
type Monitor struct {
	presence     *usecases.Presence
	authCache    *cache.AuthCache
	offlineAfter time.Duration
	interval     time.Duration
	log          zerolog.Logger
}

func NewMonitor(p *usecases.Presence, ac *cache.AuthCache, offlineAfter time.Duration, lg zerolog.Logger) *Monitor {
	interval := offlineAfter / 3
	if interval < time.Second {
		interval = time.Second
	}
	return &Monitor{
		presence:     p,
		authCache:    ac,
		offlineAfter: offlineAfter,
		interval:     interval,
		log:          lg.With().Str("component", "monitor").Logger(),
	}
}

// Start runs the loop until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		m.log.Info().Dur("interval", m.interval).Dur("offline_after", m.offlineAfter).Msg("presence monitor started")
		for {
			select {
			case <-ctx.Done():
				m.log.Info().Msg("presence monitor stopped")
				return
			case <-ticker.C:
				m.Tick(ctx)
			}
		}
	}()
}

// Tick runs one pass.
func (m *Monitor) Tick(ctx context.Context) {
	if gone := m.presence.Expire(ctx, m.offlineAfter); len(gone) > 0 {
		m.log.Info().Strs("devices", gone).Msg("devices went silent")
	}
	if m.authCache != nil {
		if n := m.authCache.Sweep(); n > 0 {
			m.log.Debug().Int("evicted", n).Msg("auth cache swept")
		}
	}
}
