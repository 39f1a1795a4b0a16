package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"tank-gateway/entities"
	"tank-gateway/protocol"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxAlerts = 5

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Width(12)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// frame mirrors what the gateway writes to observers.
type frame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type frameMsg frame
type connectedMsg struct{ link *link }
type sentMsg struct{ what string }
type noticeMsg string
type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type model struct {
	url  string
	link *link

	tanks    map[string]entities.SensorReading
	motorOn  bool
	autoMode bool
	manual   bool
	alerts   []entities.Alert
	devices  map[string]bool

	message  string
	quitting bool
}

func initialModel(url string) model {
	return model{
		url:      url,
		tanks:    map[string]entities.SensorReading{},
		devices:  map[string]bool{},
		autoMode: true,
	}
}

func (m model) Init() tea.Cmd {
	return dial(m.url)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.link != nil {
				m.link.close()
			}
			return m, tea.Quit

		case "m":
			return m, m.send(protocol.TypeMotorControl, protocol.MotorControl{State: !m.motorOn})

		case "a":
			return m, m.send(protocol.TypeAutoModeControl, protocol.AutoModeControl{Enabled: !m.autoMode})

		case "r":
			return m, m.send(protocol.TypeResetManual, protocol.ResetManual{})
		}

	case connectedMsg:
		m.link = msg.link
		m.message = successStyle.Render("✓ Connected to " + m.url)
		return m, m.link.next()

	case sentMsg:
		m.message = mutedStyle.Render("sent " + msg.what)

	case noticeMsg:
		m.message = warnStyle.Render(string(msg))

	case frameMsg:
		m.apply(frame(msg))
		return m, m.link.next()

	case errMsg:
		m.message = errorStyle.Render("✗ " + msg.err.Error())
		if m.link != nil {
			m.link.close()
			m.link = nil
		}
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, dial(m.url)
	}

	return m, nil
}

type reconnectMsg struct{}

func (m model) send(msgType string, payload any) tea.Cmd {
	if m.link == nil {
		return func() tea.Msg { return noticeMsg("not connected yet") }
	}
	l := m.link
	return func() tea.Msg {
		if err := l.write(msgType, payload); err != nil {
			return errMsg{err}
		}
		return sentMsg{what: msgType}
	}
}

// apply folds one gateway frame into the model.
func (m *model) apply(f frame) {
	switch f.Type {
	case protocol.TypeTankReading:
		var r entities.SensorReading
		if json.Unmarshal(f.Payload, &r) != nil {
			return
		}
		m.tanks[r.TankType] = r
		if r.MotorRunning != nil {
			m.motorOn = *r.MotorRunning
		}
		if r.AutoModeEnabled != nil {
			m.autoMode = *r.AutoModeEnabled
		}
		if r.ManualOverride != nil {
			m.manual = *r.ManualOverride
		}

	case protocol.TypeMotorStatus:
		var e entities.MotorEvent
		if json.Unmarshal(f.Payload, &e) != nil {
			return
		}
		m.motorOn = e.MotorRunning
		if e.AutoModeEnabled != nil {
			m.autoMode = *e.AutoModeEnabled
		}
		if e.ManualOverride != nil {
			m.manual = *e.ManualOverride
		}

	case protocol.TypeSystemAlert:
		var a entities.Alert
		if json.Unmarshal(f.Payload, &a) != nil {
			return
		}
		m.alerts = append([]entities.Alert{a}, m.alerts...)
		if len(m.alerts) > maxAlerts {
			m.alerts = m.alerts[:maxAlerts]
		}

	case protocol.TypeSystemStatus:
		var s protocol.SystemStatus
		if json.Unmarshal(f.Payload, &s) != nil {
			return
		}
		switch s.Event {
		case protocol.StatusDeviceOnline, protocol.StatusHeartbeat:
			m.devices[s.DeviceID] = true
		case protocol.StatusDeviceOffline:
			m.devices[s.DeviceID] = false
		case protocol.StatusCommandQueued:
			state := "queued"
			if s.Delivered != nil && *s.Delivered {
				state = "delivered"
			}
			m.message = mutedStyle.Render(fmt.Sprintf("command %s %s", shortID(s.CommandID), state))
		case protocol.StatusCommandAcked:
			m.message = successStyle.Render("✓ command " + shortID(s.CommandID) + " acknowledged")
		}

	case protocol.TypeRegistrationAck:
		var ack protocol.RegistrationAck
		if json.Unmarshal(f.Payload, &ack) == nil && ack.DeviceID != "" {
			m.devices[ack.DeviceID] = true
		}

	case protocol.TypeError:
		var e protocol.ErrorMessage
		if json.Unmarshal(f.Payload, &e) == nil {
			m.message = errorStyle.Render(fmt.Sprintf("✗ gateway: %s (%d)", e.Code, e.Status))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func onOff(b bool, on, off string) string {
	if b {
		return successStyle.Render(on)
	}
	return mutedStyle.Render(off)
}

func levelBar(pct float64) string {
	const width = 20
	filled := int(pct / 100 * width)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case pct <= 10:
		return errorStyle.Render(bar)
	case pct >= 95:
		return warnStyle.Render(bar)
	}
	return successStyle.Render(bar)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("Tank Monitor"))
	s.WriteString("\n")

	for _, tank := range []string{entities.TankTop, entities.TankSump} {
		r, ok := m.tanks[tank]
		s.WriteString(labelStyle.Render(tank))
		if !ok {
			s.WriteString(mutedStyle.Render("no reading yet") + "\n")
			continue
		}
		s.WriteString(fmt.Sprintf("%s %5.1f%%  %6.0f L  %s\n",
			levelBar(r.LevelPercentage), r.LevelPercentage, r.LevelLiters,
			mutedStyle.Render(r.Timestamp.Local().Format("15:04:05"))))
	}

	s.WriteString("\n")
	s.WriteString(labelStyle.Render("motor") + onOff(m.motorOn, "RUNNING", "stopped") + "\n")
	s.WriteString(labelStyle.Render("auto mode") + onOff(m.autoMode, "on", "off") + "\n")
	if m.manual {
		s.WriteString(labelStyle.Render("override") + warnStyle.Render("manual") + "\n")
	}

	if len(m.devices) > 0 {
		ids := make([]string, 0, len(m.devices))
		for id := range m.devices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		s.WriteString("\n")
		for _, id := range ids {
			s.WriteString(labelStyle.Render(id) + onOff(m.devices[id], "online", "offline") + "\n")
		}
	}

	if len(m.alerts) > 0 {
		s.WriteString("\n" + warnStyle.Render("Alerts") + "\n")
		for _, a := range m.alerts {
			s.WriteString(fmt.Sprintf("  [%s] %s %s\n", a.Severity, a.TankType, a.Message))
		}
	}

	if m.message != "" {
		s.WriteString("\n" + m.message + "\n")
	}
	s.WriteString(mutedStyle.Render("\nm motor · a auto mode · r reset manual · q quit") + "\n")
	return s.String()
}
