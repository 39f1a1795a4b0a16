package protocol

import (
	"fmt"
	"net/http"
)

type Reason string

const (
	ReasonMissingVersion     Reason = "missing_version"
	ReasonInvalidVersion     Reason = "invalid_version"
	ReasonVersionTooLow      Reason = "version_too_low"
	ReasonVersionUnsupported Reason = "version_unsupported"
	ReasonMalformed          Reason = "malformed_payload"
)

// Error rejects a payload before any domain logic runs.
type Error struct {
	Reason  Reason
	Version string // as received, empty when absent
	Min     int
	Max     int
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonVersionTooLow:
		return fmt.Sprintf("protocol version %s below minimum %d, upgrade required", e.Version, e.Min)
	case ReasonVersionUnsupported:
		return fmt.Sprintf("protocol version %s above supported maximum %d", e.Version, e.Max)
	case ReasonInvalidVersion:
		return fmt.Sprintf("protocol version %q is not an integer", e.Version)
	case ReasonMissingVersion:
		return fmt.Sprintf("protocol_version required (supported %d..%d)", e.Min, e.Max)
	}
	return "malformed payload"
}

// HTTPStatus maps the reason to a response code. Too-low versions get 426 so
// firmware can tell "upgrade yourself" apart from every other rejection.
func (e *Error) HTTPStatus() int {
	if e.Reason == ReasonVersionTooLow {
		return http.StatusUpgradeRequired
	}
	return http.StatusBadRequest
}
