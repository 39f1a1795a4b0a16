// Package metrics holds the gateway's prometheus collectors. A nil *Gateway
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tank_gateway"

type Gateway struct {
	authFailures      *prometheus.CounterVec
	authCacheHits     prometheus.Counter
	credentialLookups prometheus.Counter
	protocolRejects   *prometheus.CounterVec
	ingested          *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
	commandsEnqueued  *prometheus.CounterVec
	commandPushes     *prometheus.CounterVec
	connections       *prometheus.GaugeVec
	broadcastDropped  prometheus.Counter
}

// New creates and registers the collectors. A nil registerer yields nil.
func New(reg prometheus.Registerer) *Gateway {
	if reg == nil {
		return nil
	}

	g := &Gateway{
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Device authentication failures by reason",
		}, []string{"reason"}),

		authCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "cache_hits_total",
			Help:      "Verifications served from the auth cache",
		}),

		credentialLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "credential_lookups_total",
			Help:      "Credential store lookups",
		}),

		protocolRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "rejects_total",
			Help:      "Messages rejected by the protocol version gate",
		}, []string{"reason"}),

		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Telemetry messages ingested by kind",
		}, []string{"kind"}),

		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "persistence_errors_total",
			Help:      "Persistence failures tolerated during ingestion",
		}, []string{"op"}),

		commandsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "enqueued_total",
			Help:      "Commands durably queued by type",
		}, []string{"type"}),

		commandPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "pushes_total",
			Help:      "Live push attempts by result",
		}, []string{"result"}),

		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Live websocket connections by role",
		}, []string{"role"}),

		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "broadcast_dropped_total",
			Help:      "Observer messages dropped because the client buffer was full",
		}),
	}

	reg.MustRegister(
		g.authFailures,
		g.authCacheHits,
		g.credentialLookups,
		g.protocolRejects,
		g.ingested,
		g.persistenceErrors,
		g.commandsEnqueued,
		g.commandPushes,
		g.connections,
		g.broadcastDropped,
	)
	return g
}

func (g *Gateway) AuthFailed(reason string) {
	if g != nil {
		g.authFailures.WithLabelValues(reason).Inc()
	}
}

func (g *Gateway) AuthCacheHit() {
	if g != nil {
		g.authCacheHits.Inc()
	}
}

func (g *Gateway) CredentialLookup() {
	if g != nil {
		g.credentialLookups.Inc()
	}
}

func (g *Gateway) ProtocolRejected(reason string) {
	if g != nil {
		g.protocolRejects.WithLabelValues(reason).Inc()
	}
}

func (g *Gateway) Ingested(kind string) {
	if g != nil {
		g.ingested.WithLabelValues(kind).Inc()
	}
}

func (g *Gateway) PersistenceError(op string) {
	if g != nil {
		g.persistenceErrors.WithLabelValues(op).Inc()
	}
}

func (g *Gateway) CommandEnqueued(cmdType string) {
	if g != nil {
		g.commandsEnqueued.WithLabelValues(cmdType).Inc()
	}
}

func (g *Gateway) CommandPushed(result string) {
	if g != nil {
		g.commandPushes.WithLabelValues(result).Inc()
	}
}

func (g *Gateway) ConnectionOpened(role string) {
	if g != nil {
		g.connections.WithLabelValues(role).Inc()
	}
}

func (g *Gateway) ConnectionClosed(role string) {
	if g != nil {
		g.connections.WithLabelValues(role).Dec()
	}
}

func (g *Gateway) BroadcastDropped() {
	if g != nil {
		g.broadcastDropped.Inc()
	}
}
