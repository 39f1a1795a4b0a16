// Package protocol holds the wire contract between the gateway, devices and
// observers: the version gate and the message types for each direction.
package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// VersionField is the payload key carrying the firmware protocol version.
const VersionField = "protocol_version"

// Gate accepts payloads whose protocol_version lies in [Min, Max].
type Gate struct {
	Min int
	Max int
}

func NewGate(min, max int) Gate {
	return Gate{Min: min, Max: max}
}

// Check locates protocol_version at the top level of raw, or nested under
// "payload" or "data", and returns the resolved version. An absent version is
// accepted as 1 while Min is 1 so pre-versioning firmware keeps working.
func (g Gate) Check(raw []byte) (int, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return 0, &Error{Reason: ReasonMalformed, Min: g.Min, Max: g.Max}
	}
	return g.check(findVersion(top))
}

func (g Gate) check(v json.RawMessage) (int, error) {
	if v == nil {
		if g.Min == 1 {
			return 1, nil
		}
		return 0, &Error{Reason: ReasonMissingVersion, Min: g.Min, Max: g.Max}
	}

	version, ok := parseVersion(v)
	shown := strings.Trim(string(v), `"`)
	if !ok {
		return 0, &Error{Reason: ReasonInvalidVersion, Version: shown, Min: g.Min, Max: g.Max}
	}
	if version < g.Min {
		return 0, &Error{Reason: ReasonVersionTooLow, Version: shown, Min: g.Min, Max: g.Max}
	}
	if version > g.Max {
		return 0, &Error{Reason: ReasonVersionUnsupported, Version: shown, Min: g.Min, Max: g.Max}
	}
	return version, nil
}

func findVersion(top map[string]json.RawMessage) json.RawMessage {
	if v := present(top[VersionField]); v != nil {
		return v
	}
	for _, key := range []string{"payload", "data"} {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(top[key], &nested); err != nil {
			continue
		}
		if v := present(nested[VersionField]); v != nil {
			return v
		}
	}
	return nil
}

// present treats an explicit null like an absent key.
func present(v json.RawMessage) json.RawMessage {
	if len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil
	}
	return v
}

// parseVersion accepts integral JSON numbers and numeric strings.
func parseVersion(v json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil
	}
	return 0, false
}
