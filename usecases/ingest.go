package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tank-gateway/decision"
	"tank-gateway/entities"
	"tank-gateway/metrics"
	"tank-gateway/protocol"
	"tank-gateway/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Kind string

const (
	KindSensorData  Kind = protocol.TypeSensorData
	KindMotorStatus Kind = protocol.TypeMotorStatus
	KindHeartbeat   Kind = protocol.TypeHeartbeat
	KindAlert       Kind = protocol.TypeAlert
)

// Level thresholds for derived alerts.
const (
	lowLevelPercent     = 10.0
	overflowRiskPercent = 95.0
)

// Outcome describes what an ingest did. PersistErr is informational: the
// device is acknowledged regardless.
type Outcome struct {
	Kind       Kind
	Decision   *decision.Result
	Command    *entities.MotorCommand
	Delivered  bool
	Alerts     []entities.Alert
	PersistErr error
}

// Pipeline normalizes telemetry, stores it, fans it out to observers and
// feeds sensor readings to the decision engine.
type Pipeline struct {
	store    repositories.Store
	notifier Notifier
	queue    *CommandQueue
	engine   decision.Engine
	presence *Presence
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Gateway
}

type PipelineOptions struct {
	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Gateway
}

func NewPipeline(store repositories.Store, n Notifier, q *CommandQueue, e decision.Engine, p *Presence, opts PipelineOptions) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if n == nil {
		n = nopNotifier{}
	}
	return &Pipeline{
		store:    store,
		notifier: n,
		queue:    q,
		engine:   e,
		presence: p,
		now:      opts.Now,
		log:      opts.Logger.With().Str("component", "ingest").Logger(),
		metrics:  opts.Metrics,
	}
}

// Ingest handles one telemetry message from an authenticated device.
// It only returns an error for messages that are not telemetry.
func (p *Pipeline) Ingest(ctx context.Context, deviceID string, version int, msg protocol.DeviceMessage) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	switch m := msg.(type) {
	case protocol.SensorData:
		out, err = p.sensorData(ctx, deviceID, version, m)
	case protocol.MotorStatus:
		out, err = p.motorStatus(ctx, deviceID, m)
	case protocol.Heartbeat:
		out, err = p.heartbeat(ctx, deviceID)
	case protocol.DeviceAlert:
		out, err = p.alert(ctx, deviceID, m)
	default:
		return Outcome{}, fmt.Errorf("%w: %T", ErrUnsupportedKind, msg)
	}
	if err == nil {
		p.metrics.Ingested(string(out.Kind))
	}
	return out, err
}

func (p *Pipeline) sensorData(ctx context.Context, deviceID string, version int, m protocol.SensorData) (Outcome, error) {
	out := Outcome{Kind: KindSensorData}
	now := p.now().UTC()

	reading := entities.SensorReading{
		ID:              uuid.New().String(),
		DeviceID:        deviceID,
		TankType:        canonicalTank(m.TankType),
		LevelPercentage: clamp(m.LevelPercentage, 0, 100),
		LevelLiters:     max(m.LevelLiters, 0),
		SensorHealth:    strings.ToLower(m.SensorHealth),
		ESP32ID:         m.ESP32ID,
		BatteryVoltage:  m.BatteryVoltage,
		SignalStrength:  m.SignalStrength,
		FloatSwitch:     m.FloatSwitch,
		MotorRunning:    m.MotorRunning,
		ManualOverride:  m.ManualOverride,
		AutoModeEnabled: m.AutoModeEnabled,
		ProtocolVersion: version,
		Timestamp:       m.Timestamp.Or(now),
		CreatedAt:       now,
	}
	if reading.SensorHealth == "" {
		reading.SensorHealth = "ok"
	}
	if reading.ESP32ID == "" {
		reading.ESP32ID = deviceID
	}

	if err := p.store.SaveReading(ctx, &reading); err != nil {
		out.PersistErr = p.persistFailed("save_reading", deviceID, err)
	}
	p.presence.Seen(ctx, deviceID)
	p.notifier.BroadcastToObservers(protocol.TankReading{SensorReading: reading})

	out.Alerts = p.thresholdAlerts(ctx, reading)

	tank := decision.ParseTank(reading.TankType)
	top, sump := p.levels(ctx, tank, reading.LevelPercentage)
	result := p.engine.Decide(tank, top, sump)
	out.Decision = &result
	if result.Command == decision.Maintain {
		return out, nil
	}

	p.log.Info().
		Str("device_id", deviceID).
		Str("command", string(result.Command)).
		Str("reason", result.Reason).
		Float64("top", top).
		Float64("sump", sump).
		Msg("pump decision")

	cmd, delivered, err := p.queue.Enqueue(ctx, result.TargetDeviceID, entities.CommandMotorControl, map[string]any{
		"action": string(result.Command),
		"reason": result.Reason,
		"source": "auto",
	}, 0)
	if err != nil {
		// The next reading derives the same decision again.
		p.log.Error().Err(err).Str("reason", result.Reason).Msg("automatic command not queued")
		if out.PersistErr == nil {
			out.PersistErr = err
		}
		return out, nil
	}
	out.Command, out.Delivered = cmd, delivered
	return out, nil
}

// levels returns the top and sump levels to decide on: the fresh reading for
// its own tank and the latest stored reading for the other one.
func (p *Pipeline) levels(ctx context.Context, tank decision.Tank, current float64) (top, sump float64) {
	top, sump = decision.DefaultLevel, decision.DefaultLevel
	switch tank {
	case decision.TankTop:
		return current, p.latestLevel(ctx, entities.TankSump)
	case decision.TankSump:
		return p.latestLevel(ctx, entities.TankTop), current
	}
	return top, sump
}

func (p *Pipeline) latestLevel(ctx context.Context, tankType string) float64 {
	r, err := p.store.LatestReading(ctx, tankType)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			p.log.Warn().Err(err).Str("tank_type", tankType).Msg("latest reading unavailable, assuming midpoint")
		}
		return decision.DefaultLevel
	}
	return r.LevelPercentage
}

func (p *Pipeline) thresholdAlerts(ctx context.Context, r entities.SensorReading) []entities.Alert {
	level := r.LevelPercentage
	var alerts []entities.Alert
	add := func(alertType, severity, msg string) {
		alerts = append(alerts, entities.Alert{
			ID:              uuid.New().String(),
			TankType:        r.TankType,
			ESP32ID:         r.ESP32ID,
			AlertType:       alertType,
			Severity:        severity,
			Message:         msg,
			LevelPercentage: &level,
			Timestamp:       r.Timestamp,
		})
	}

	switch {
	case level <= lowLevelPercent:
		add("low_level", "warning", fmt.Sprintf("%s level low: %.1f%%", r.TankType, level))
	case level >= overflowRiskPercent:
		add("overflow_risk", "critical", fmt.Sprintf("%s near overflow: %.1f%%", r.TankType, level))
	}
	if r.SensorHealth != "ok" {
		add("sensor_fault", "warning", fmt.Sprintf("%s sensor reports %q", r.TankType, r.SensorHealth))
	}

	for i := range alerts {
		p.raise(ctx, r.DeviceID, &alerts[i])
	}
	return alerts
}

func (p *Pipeline) raise(ctx context.Context, deviceID string, a *entities.Alert) {
	if err := p.store.SaveAlert(ctx, a); err != nil {
		p.persistFailed("save_alert", deviceID, err)
	}
	p.notifier.BroadcastToObservers(protocol.SystemAlert{Alert: *a})
}

func (p *Pipeline) motorStatus(ctx context.Context, deviceID string, m protocol.MotorStatus) (Outcome, error) {
	out := Outcome{Kind: KindMotorStatus}
	now := p.now().UTC()

	ev := entities.MotorEvent{
		ID:              uuid.New().String(),
		DeviceID:        deviceID,
		MotorRunning:    m.MotorRunning,
		PowerDetected:   m.PowerDetected,
		CurrentDraw:     m.CurrentDraw,
		RuntimeSeconds:  m.RuntimeSeconds,
		ManualOverride:  m.ManualOverride,
		AutoModeEnabled: m.AutoModeEnabled,
		Timestamp:       m.Timestamp.Or(now),
		CreatedAt:       now,
	}
	if err := p.store.SaveMotorEvent(ctx, &ev); err != nil {
		out.PersistErr = p.persistFailed("save_motor_event", deviceID, err)
	}
	p.presence.Seen(ctx, deviceID)
	p.notifier.BroadcastToObservers(protocol.MotorStatusEvent{MotorEvent: ev})
	return out, nil
}

func (p *Pipeline) heartbeat(ctx context.Context, deviceID string) (Outcome, error) {
	out := Outcome{Kind: KindHeartbeat}
	now := p.now().UTC()

	err := p.store.UpdateDeviceStatus(ctx, deviceID, entities.DeviceStatusOnline, now)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		out.PersistErr = p.persistFailed("update_device_status", deviceID, err)
	}
	p.presence.Seen(ctx, deviceID)
	p.notifier.BroadcastToObservers(protocol.SystemStatus{
		Event:    protocol.StatusHeartbeat,
		DeviceID: deviceID,
		Status:   entities.DeviceStatusOnline,
	})
	return out, nil
}

func (p *Pipeline) alert(ctx context.Context, deviceID string, m protocol.DeviceAlert) (Outcome, error) {
	out := Outcome{Kind: KindAlert}
	if m.AlertType == "" {
		m.AlertType = "device_alert"
	}
	if m.Severity == "" {
		m.Severity = "warning"
	}
	a := entities.Alert{
		ID:              uuid.New().String(),
		TankType:        canonicalTank(m.TankType),
		ESP32ID:         m.ESP32ID,
		AlertType:       m.AlertType,
		Severity:        strings.ToLower(m.Severity),
		Message:         m.Message,
		LevelPercentage: m.LevelPercentage,
		Timestamp:       m.Timestamp.Or(p.now().UTC()),
	}
	if a.ESP32ID == "" {
		a.ESP32ID = deviceID
	}
	if err := p.store.SaveAlert(ctx, &a); err != nil {
		out.PersistErr = p.persistFailed("save_alert", deviceID, err)
	}
	p.presence.Seen(ctx, deviceID)
	p.notifier.BroadcastToObservers(protocol.SystemAlert{Alert: a})
	out.Alerts = []entities.Alert{a}
	return out, nil
}

func (p *Pipeline) persistFailed(op, deviceID string, err error) error {
	p.metrics.PersistenceError(op)
	p.log.Error().Err(err).Str("op", op).Str("device_id", deviceID).Msg("persistence failed, continuing with in-memory record")
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// canonicalTank maps firmware spellings onto the stored tank types; unknown
// values are kept as sent.
func canonicalTank(s string) string {
	switch decision.ParseTank(s) {
	case decision.TankTop:
		return entities.TankTop
	case decision.TankSump:
		return entities.TankSump
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
