// Package usecases holds the gateway's behaviour: ingesting telemetry,
// deciding and queueing pump commands, and tracking device presence.
package usecases

import (
	"errors"
	"time"

	"tank-gateway/protocol"
)

var (
	// ErrPersistence wraps any storage failure surfaced by a usecase.
	ErrPersistence = errors.New("persistence failure")

	ErrInvalidCommand  = errors.New("invalid command")
	ErrUnsupportedKind = errors.New("unsupported message kind")
)

// Notifier fans events out to dashboards.
type Notifier interface {
	BroadcastToObservers(ev protocol.ObserverEvent) int
}

// Dispatcher pushes to a live device stream.
type Dispatcher interface {
	SendToDevice(deviceID string, ev protocol.DeviceEvent) (sent bool, err error)
}

type nopNotifier struct{}

func (nopNotifier) BroadcastToObservers(protocol.ObserverEvent) int { return 0 }

func secondsToDuration(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}
