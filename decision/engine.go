// Package decision turns the latest tank levels into a pump command.
package decision

import "strings"

type Command string

const (
	Start    Command = "start"
	Stop     Command = "stop"
	Maintain Command = "maintain"
)

const (
	ReasonAutoFillTop      = "auto_fill_low_top_tank"
	ReasonSafetyCutoffTop  = "safety_cutoff_top_tank"
	ReasonAutoFillSump     = "auto_fill_low_sump_tank"
	ReasonSafetyCutoffSump = "safety_cutoff_sump_full"
	ReasonNormal           = "normal_operation"
)

// DefaultLevel stands in for a tank that has never reported.
const DefaultLevel = 50.0

type Tank int

const (
	TankUnknown Tank = iota
	TankTop
	TankSump
)

// ParseTank accepts the spellings firmware uses: top, top_tank, TOP_TANK.
func ParseTank(s string) Tank {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_tank") {
	case "top":
		return TankTop
	case "sump":
		return TankSump
	}
	return TankUnknown
}

// Result is consumed immediately by the command queue; it is never stored.
type Result struct {
	Command        Command
	Reason         string
	TargetDeviceID string
}

// Engine is stateless apart from the pump controller id.
// The thresholds have no dead band, so a level sitting on a boundary can
// alternate between start and stop on consecutive readings.
type Engine struct {
	PumpDeviceID string
}

func NewEngine(pumpDeviceID string) Engine {
	return Engine{PumpDeviceID: pumpDeviceID}
}

// Decide evaluates the rules for the tank that just reported.
func (e Engine) Decide(tank Tank, top, sump float64) Result {
	r := Result{Command: Maintain, Reason: ReasonNormal, TargetDeviceID: e.PumpDeviceID}

	switch tank {
	case TankTop:
		if top < 20 && sump > 30 {
			r.Command, r.Reason = Start, ReasonAutoFillTop
		} else if top > 90 || sump < 20 {
			r.Command, r.Reason = Stop, ReasonSafetyCutoffTop
		}
	case TankSump:
		if sump < 20 && top > 30 {
			r.Command, r.Reason = Start, ReasonAutoFillSump
		} else if sump > 90 {
			r.Command, r.Reason = Stop, ReasonSafetyCutoffSump
		}
	}
	return r
}
