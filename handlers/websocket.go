package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tank-gateway/auth"
	"tank-gateway/metrics"
	"tank-gateway/protocol"
	"tank-gateway/usecases"
	"tank-gateway/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSHandler groups dependencies for websocket flows.
type WSHandler struct {
	mgr          *ws.Manager
	authn        *auth.Authenticator
	hmacRequired bool
	gate         protocol.Gate
	pipeline     *usecases.Pipeline
	queue        *usecases.CommandQueue
	control      *usecases.Control
	presence     *usecases.Presence
	log          zerolog.Logger
	metrics      *metrics.Gateway
}

type WSDeps struct {
	Manager      *ws.Manager
	Auth         *auth.Authenticator
	HMACRequired bool
	Gate         protocol.Gate
	Pipeline     *usecases.Pipeline
	Queue        *usecases.CommandQueue
	Control      *usecases.Control
	Presence     *usecases.Presence
	Logger       zerolog.Logger
	Metrics      *metrics.Gateway
}

func NewWSHandler(d WSDeps) *WSHandler {
	return &WSHandler{
		mgr:          d.Manager,
		authn:        d.Auth,
		hmacRequired: d.HMACRequired,
		gate:         d.Gate,
		pipeline:     d.Pipeline,
		queue:        d.Queue,
		control:      d.Control,
		presence:     d.Presence,
		log:          d.Logger.With().Str("component", "ws").Logger(),
		metrics:      d.Metrics,
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// HandleWS upgrades to websocket. Devices may authenticate up front with the
// usual headers or later in their register message; connections that never
// name a device are observers.
// GET /ws
func (h *WSHandler) HandleWS(c *gin.Context) {
	ctx := c.Request.Context()

	var preauth string
	if c.GetHeader(auth.HeaderDeviceID) != "" {
		id, err := h.authn.Verify(ctx, auth.Request{
			DeviceID:  c.GetHeader(auth.HeaderDeviceID),
			APIKey:    c.GetHeader(auth.HeaderAPIKey),
			Signature: c.GetHeader(auth.HeaderSignature),
			Timestamp: c.GetHeader(auth.HeaderTimestamp),
		}, h.hmacRequired)
		if err != nil {
			status := http.StatusInternalServerError
			var ae *auth.Error
			if errors.As(err, &ae) {
				status = ae.HTTPStatus()
			}
			c.JSON(status, gin.H{"error": http.StatusText(status)})
			return
		}
		preauth = id
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConnection(sock)
	h.mgr.Add(conn)
	go conn.WritePump()

	if preauth != "" {
		h.registerDevice(ctx, conn, preauth, c.GetHeader("x-device-type"))
	}

	err = conn.ReadPump(func(data []byte) { h.dispatch(ctx, conn, data) })
	if err != nil {
		h.log.Debug().Err(err).Str("conn", conn.ID).Msg("read loop ended")
	}

	deviceID := conn.DeviceID()
	if h.mgr.Unregister(conn) {
		// Persisting the offline status must not depend on the request context.
		h.presence.Gone(context.WithoutCancel(ctx), deviceID, "disconnected")
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Connection, data []byte) {
	// Frames already in flight after a refused handshake are dropped.
	if conn.Closed() {
		return
	}
	switch conn.Role() {
	case ws.RoleDevice:
		h.handleDevice(ctx, conn, data)
	case ws.RoleObserver:
		h.handleObserver(ctx, conn, data)
	default:
		h.handshake(ctx, conn, data)
	}
}

// handshake decides the role from the first frame.
func (h *WSHandler) handshake(ctx context.Context, conn *ws.Connection, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		h.reply(conn, protocol.ErrorMessage{Status: http.StatusBadRequest, Code: "bad_message"})
		return
	}
	if env.Type != protocol.TypeRegister {
		h.mgr.RegisterObserver(conn)
		h.handleObserver(ctx, conn, data)
		return
	}

	msg, err := protocol.DecodeDevice(data)
	if err != nil {
		h.reply(conn, protocol.ErrorMessage{Status: http.StatusBadRequest, Code: "bad_message"})
		return
	}
	reg := msg.(protocol.Register)
	if reg.DeviceID == "" {
		h.mgr.RegisterObserver(conn)
		h.reply(conn, protocol.RegistrationAck{Role: string(ws.RoleObserver)})
		return
	}

	id, err := h.authn.Verify(ctx, auth.Request{
		DeviceID:  reg.DeviceID,
		APIKey:    reg.APIKey,
		Signature: reg.Signature,
		Timestamp: reg.Timestamp,
	}, h.hmacRequired)
	if err != nil {
		h.refuse(conn, err)
		return
	}
	if _, err := h.gate.Check(data); err != nil {
		h.refuse(conn, err)
		return
	}
	h.registerDevice(ctx, conn, id, reg.DeviceType)
}

// refuse answers a failed device handshake with a coarse status and closes.
func (h *WSHandler) refuse(conn *ws.Connection, err error) {
	msg := protocol.ErrorMessage{Status: http.StatusInternalServerError, Code: "internal_error"}
	var ae *auth.Error
	var pe *protocol.Error
	switch {
	case errors.As(err, &ae):
		msg = protocol.ErrorMessage{Status: ae.HTTPStatus(), Code: "unauthorized"}
	case errors.As(err, &pe):
		h.metrics.ProtocolRejected(string(pe.Reason))
		msg = protocol.ErrorMessage{Status: pe.HTTPStatus(), Code: string(pe.Reason)}
	default:
		h.log.Error().Err(err).Msg("device handshake failed")
	}
	h.reply(conn, msg)
	// The queued error frame is still flushed before the close frame.
	h.mgr.Unregister(conn)
}

func (h *WSHandler) registerDevice(ctx context.Context, conn *ws.Connection, deviceID, deviceType string) {
	h.mgr.RegisterDevice(conn, deviceID, deviceType)
	h.presence.Seen(ctx, deviceID)
	h.mgr.BroadcastToObservers(protocol.RegistrationAck{
		Role:       string(ws.RoleDevice),
		DeviceID:   deviceID,
		DeviceType: deviceType,
	})

	// Hand over whatever queued up while the device was away.
	pending, err := h.queue.Pending(ctx, deviceID, 0)
	if err != nil {
		h.log.Warn().Err(err).Str("device_id", deviceID).Msg("could not load pending commands")
		return
	}
	for i := range pending {
		h.reply(conn, protocol.NewMotorCommand(&pending[i]))
	}
}

func (h *WSHandler) handleDevice(ctx context.Context, conn *ws.Connection, data []byte) {
	deviceID := conn.DeviceID()

	version, err := h.gate.Check(data)
	if err != nil {
		var pe *protocol.Error
		if errors.As(err, &pe) {
			h.metrics.ProtocolRejected(string(pe.Reason))
			h.log.Warn().Str("device_id", deviceID).Str("reason", string(pe.Reason)).Msg("message rejected")
			h.reply(conn, protocol.ErrorMessage{Status: pe.HTTPStatus(), Code: string(pe.Reason)})
		}
		return
	}

	msg, err := protocol.DecodeDevice(data)
	if err != nil {
		h.log.Warn().Err(err).Str("device_id", deviceID).Msg("undecodable device message")
		h.reply(conn, protocol.ErrorMessage{Status: http.StatusBadRequest, Code: "bad_message"})
		return
	}

	switch m := msg.(type) {
	case protocol.Register:
		h.presence.Seen(ctx, deviceID)
	case protocol.CommandAck:
		h.presence.Seen(ctx, deviceID)
		if err := h.queue.Acknowledge(ctx, deviceID, m.CommandID); err != nil {
			h.log.Warn().Err(err).Str("device_id", deviceID).Str("command_id", m.CommandID).Msg("command ack failed")
		}
	default:
		if _, err := h.pipeline.Ingest(ctx, deviceID, version, msg); err != nil {
			h.log.Warn().Err(err).Str("device_id", deviceID).Msg("ingest failed")
			return
		}
		if _, ok := msg.(protocol.Heartbeat); ok {
			h.reply(conn, protocol.Pong{ServerTime: time.Now().Unix()})
		}
	}
}

func (h *WSHandler) handleObserver(ctx context.Context, conn *ws.Connection, data []byte) {
	msg, err := protocol.DecodeObserver(data)
	if err != nil {
		h.reply(conn, protocol.ErrorMessage{Status: http.StatusBadRequest, Code: "bad_message", Detail: err.Error()})
		return
	}
	if _, ok := msg.(protocol.Register); ok {
		h.reply(conn, protocol.RegistrationAck{Role: string(ws.RoleObserver)})
		return
	}

	cmd, delivered, err := h.control.Handle(ctx, msg)
	if err != nil {
		h.log.Error().Err(err).Str("conn", conn.ID).Msg("observer command not queued")
		h.reply(conn, protocol.ErrorMessage{Status: http.StatusInternalServerError, Code: "command_not_queued"})
		return
	}
	h.mgr.BroadcastToObservers(protocol.SystemStatus{
		Event:     protocol.StatusCommandQueued,
		DeviceID:  cmd.DeviceID,
		CommandID: cmd.ID,
		Delivered: &delivered,
	})
}

func (h *WSHandler) reply(conn *ws.Connection, m protocol.Outbound) {
	if err := conn.Send(m); err != nil {
		h.log.Debug().Err(err).Str("conn", conn.ID).Str("type", m.MessageType()).Msg("reply dropped")
	}
}
