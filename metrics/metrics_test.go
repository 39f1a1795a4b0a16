package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilGatewayIsNoop(t *testing.T) {
	var g *Gateway
	assert.Nil(t, New(nil))
	assert.NotPanics(t, func() {
		g.AuthFailed("x")
		g.Ingested("sensor_data")
		g.ConnectionOpened("device")
		g.BroadcastDropped()
	})
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := New(reg)

	g.AuthFailed("bad_signature")
	g.AuthFailed("bad_signature")
	g.Ingested("heartbeat")
	g.ConnectionOpened("observer")
	g.ConnectionOpened("observer")
	g.ConnectionClosed("observer")

	assert.InDelta(t, 2, testutil.ToFloat64(g.authFailures.WithLabelValues("bad_signature")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(g.ingested.WithLabelValues("heartbeat")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(g.connections.WithLabelValues("observer")), 0)
}
