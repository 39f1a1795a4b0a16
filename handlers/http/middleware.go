package httpHandler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"

	"tank-gateway/auth"
	"tank-gateway/metrics"
	"tank-gateway/protocol"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	ctxDeviceID = "device_id"
	ctxRawBody  = "raw_body"
	ctxVersion  = "protocol_version"

	maxBodyBytes = 64 * 1024
)

// DeviceGuard is the middleware chain for device-facing routes:
// authenticate, rate limit, then check the protocol version.
type DeviceGuard struct {
	authn        *auth.Authenticator
	hmacRequired bool
	gate         protocol.Gate
	limiter      *DeviceLimiter
	log          zerolog.Logger
	metrics      *metrics.Gateway
}

func NewDeviceGuard(a *auth.Authenticator, hmacRequired bool, gate protocol.Gate, l *DeviceLimiter, lg zerolog.Logger, m *metrics.Gateway) *DeviceGuard {
	return &DeviceGuard{
		authn:        a,
		hmacRequired: hmacRequired,
		gate:         gate,
		limiter:      l,
		log:          lg.With().Str("component", "http").Logger(),
		metrics:      m,
	}
}

// Authenticate reads the raw body (it is part of the signature), verifies
// the device and stores the resolved id on the context.
func (g *DeviceGuard) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
			return
		}
		if len(body) > maxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "body too large"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		id, err := g.authn.Verify(c.Request.Context(), auth.Request{
			DeviceID:  c.GetHeader(auth.HeaderDeviceID),
			APIKey:    c.GetHeader(auth.HeaderAPIKey),
			Signature: c.GetHeader(auth.HeaderSignature),
			Timestamp: c.GetHeader(auth.HeaderTimestamp),
			Body:      body,
		}, g.hmacRequired)
		if err != nil {
			var ae *auth.Error
			if errors.As(err, &ae) {
				// Callers only learn the coarse category.
				c.AbortWithStatusJSON(ae.HTTPStatus(), gin.H{"success": false, "error": "unauthorized"})
				return
			}
			g.log.Error().Err(err).Msg("device authentication unavailable")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
			return
		}

		c.Set(ctxDeviceID, id)
		c.Set(ctxRawBody, body)
		c.Next()
	}
}

// Limit throttles each authenticated device independently.
func (g *DeviceGuard) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.limiter != nil && !g.limiter.Allow(c.GetString(ctxDeviceID)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limited"})
			return
		}
		c.Next()
	}
}

// CheckVersion rejects bodies outside the supported protocol window.
func (g *DeviceGuard) CheckVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := g.gate.Check(rawBody(c))
		if err != nil {
			var pe *protocol.Error
			if errors.As(err, &pe) {
				g.metrics.ProtocolRejected(string(pe.Reason))
				g.log.Warn().Str("device_id", c.GetString(ctxDeviceID)).Str("reason", string(pe.Reason)).Msg(pe.Error())
				c.AbortWithStatusJSON(pe.HTTPStatus(), gin.H{
					"success":     false,
					"error":       string(pe.Reason),
					"min_version": g.gate.Min,
					"max_version": g.gate.Max,
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad request"})
			return
		}
		c.Set(ctxVersion, v)
		c.Next()
	}
}

// Chain returns the three steps in order.
func (g *DeviceGuard) Chain() []gin.HandlerFunc {
	return []gin.HandlerFunc{g.Authenticate(), g.Limit(), g.CheckVersion()}
}

func rawBody(c *gin.Context) []byte {
	if v, ok := c.Get(ctxRawBody); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

// DeviceLimiter holds one token bucket per device id.
type DeviceLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewDeviceLimiter returns nil when rps <= 0, which disables limiting.
func NewDeviceLimiter(rps float64, burst int) *DeviceLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &DeviceLimiter{limit: rate.Limit(rps), burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (l *DeviceLimiter) Allow(deviceID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[deviceID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[deviceID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
