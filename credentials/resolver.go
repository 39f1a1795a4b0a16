// Package credentials resolves device credentials from an ordered list of
// sources. The first source that knows a device wins; partial records are
// never merged across sources.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"tank-gateway/entities"
	"tank-gateway/repositories"
)

// Resolver looks up one device. ok is false when the source does not know it.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, deviceID string) (cred entities.DeviceCredential, ok bool, err error)
}

// Chain evaluates resolvers in order and returns the first match.
type Chain []Resolver

func (c Chain) Name() string { return "chain" }

// Resolve returns the first match. A source error does not stop the chain so
// the static table can still serve devices while the store is unreachable;
// the error is returned only if no later source matched.
func (c Chain) Resolve(ctx context.Context, deviceID string) (entities.DeviceCredential, bool, error) {
	var errs []error
	for _, r := range c {
		cred, ok, err := r.Resolve(ctx, deviceID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		if ok {
			return cred, true, nil
		}
	}
	return entities.DeviceCredential{}, false, errors.Join(errs...)
}

// StoreResolver is the primary lookup by device id.
type StoreResolver struct {
	Devices repositories.DeviceRepository
}

func (StoreResolver) Name() string { return "store" }

func (r StoreResolver) Resolve(ctx context.Context, deviceID string) (entities.DeviceCredential, bool, error) {
	d, err := r.Devices.GetDevice(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return entities.DeviceCredential{}, false, nil
	}
	if err != nil {
		return entities.DeviceCredential{}, false, err
	}
	return d.Credential(), true, nil
}

// LegacyResolver finds devices that still identify with their hardware id.
// The returned credential carries the canonical device id.
type LegacyResolver struct {
	Devices repositories.DeviceRepository
}

func (LegacyResolver) Name() string { return "legacy" }

func (r LegacyResolver) Resolve(ctx context.Context, legacyID string) (entities.DeviceCredential, bool, error) {
	d, err := r.Devices.GetDeviceByLegacyID(ctx, legacyID)
	if errors.Is(err, repositories.ErrNotFound) {
		return entities.DeviceCredential{}, false, nil
	}
	if err != nil {
		return entities.DeviceCredential{}, false, err
	}
	return d.Credential(), true, nil
}
