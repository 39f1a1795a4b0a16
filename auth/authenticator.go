// Package auth verifies that a request or connection belongs to a known,
// active device.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tank-gateway/cache"
	"tank-gateway/credentials"
	"tank-gateway/entities"
	"tank-gateway/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Header names used by device firmware.
const (
	HeaderDeviceID  = "x-device-id"
	HeaderAPIKey    = "x-api-key"
	HeaderSignature = "x-signature"
	HeaderTimestamp = "x-timestamp"
)

const DefaultDrift = 300 * time.Second

// Request carries the identity material presented by a device.
type Request struct {
	DeviceID  string
	APIKey    string
	Signature string
	Timestamp string // unix seconds
	Body      []byte // raw request body, signed when HMAC is required
}

type Options struct {
	Drift   time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Gateway
}

type Authenticator struct {
	resolver credentials.Resolver
	cache    *cache.AuthCache
	lookups  singleflight.Group
	drift    time.Duration
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Gateway
}

func NewAuthenticator(resolver credentials.Resolver, authCache *cache.AuthCache, opts Options) *Authenticator {
	if opts.Drift <= 0 {
		opts.Drift = DefaultDrift
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Authenticator{
		resolver: resolver,
		cache:    authCache,
		drift:    opts.Drift,
		now:      opts.Now,
		log:      opts.Logger.With().Str("component", "auth").Logger(),
		metrics:  opts.Metrics,
	}
}

// Verify returns the resolved device id or an *Error. Any other error is an
// internal fault (the credential sources could not be queried).
//
// A cached (device_id, api_key) pair is trusted without further checks until
// its entry expires, so revocation takes effect within one cache TTL.
func (a *Authenticator) Verify(ctx context.Context, req Request, hmacRequired bool) (string, error) {
	if req.DeviceID == "" || req.APIKey == "" {
		return "", a.reject(ReasonMissingHeaders, req.DeviceID, "identity headers absent")
	}

	if id, ok := a.cache.Lookup(req.DeviceID, req.APIKey); ok {
		a.metrics.AuthCacheHit()
		return id, nil
	}

	cred, found, err := a.resolve(ctx, req.DeviceID)
	if err != nil {
		a.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("credential lookup failed")
		return "", fmt.Errorf("resolve credentials for %s: %w", req.DeviceID, err)
	}
	if !found {
		return "", a.reject(ReasonDeviceNotFound, req.DeviceID, "no credential source knows this device")
	}

	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(cred.APIKey)) != 1 {
		return "", a.reject(ReasonCredentialMismatch, req.DeviceID, "api key mismatch")
	}
	if !cred.IsActive {
		return "", a.reject(ReasonDeviceInactive, req.DeviceID, "device is deactivated")
	}

	if hmacRequired {
		if err := a.checkSignature(req, cred); err != nil {
			return "", err
		}
	}

	a.cache.Store(req.DeviceID, req.APIKey, cred.DeviceID)
	return cred.DeviceID, nil
}

// resolve collapses concurrent lookups for the same id into one store query.
func (a *Authenticator) resolve(ctx context.Context, deviceID string) (entities.DeviceCredential, bool, error) {
	type result struct {
		cred  entities.DeviceCredential
		found bool
	}
	v, err, _ := a.lookups.Do(deviceID, func() (interface{}, error) {
		a.metrics.CredentialLookup()
		cred, found, err := a.resolver.Resolve(ctx, deviceID)
		return result{cred, found}, err
	})
	if err != nil {
		return entities.DeviceCredential{}, false, err
	}
	r := v.(result)
	return r.cred, r.found, nil
}

func (a *Authenticator) checkSignature(req Request, cred entities.DeviceCredential) error {
	if req.Signature == "" || req.Timestamp == "" {
		return a.reject(ReasonMissingSignature, req.DeviceID, "signature or timestamp header absent")
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(req.Timestamp), 10, 64)
	if err != nil {
		return a.reject(ReasonMalformed, req.DeviceID, "timestamp is not unix seconds")
	}
	skew := a.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.drift {
		return a.reject(ReasonClockDrift, req.DeviceID, fmt.Sprintf("clock skew %s exceeds %s", skew, a.drift))
	}

	if cred.HMACSecret == "" {
		return a.reject(ReasonMissingSecret, req.DeviceID, "no hmac secret on record")
	}

	expected := Sign(cred.HMACSecret, req.DeviceID, req.Body, req.Timestamp)
	provided := strings.ToLower(strings.TrimSpace(req.Signature))
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return a.reject(ReasonBadSignature, req.DeviceID, "signature mismatch")
	}
	return nil
}

// Sign computes hex(HMAC-SHA256(secret, deviceID ++ body ++ timestamp)).
func Sign(secret, deviceID string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(deviceID))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Authenticator) reject(reason Reason, deviceID, cause string) error {
	a.metrics.AuthFailed(string(reason))
	a.log.Warn().Str("device_id", deviceID).Str("reason", string(reason)).Msg(cause)
	return fail(reason, deviceID)
}

// Invalidate drops cached verifications for a device, e.g. after it is
// deactivated out of band.
func (a *Authenticator) Invalidate(deviceID string) {
	a.cache.Forget(deviceID)
}

// IsAuthError reports whether err is a verification failure as opposed to an
// internal fault.
func IsAuthError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}
