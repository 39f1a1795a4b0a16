package auth

import (
	"fmt"
	"net/http"
)

type Reason string

const (
	ReasonMissingHeaders     Reason = "missing_headers"
	ReasonDeviceNotFound     Reason = "device_not_found"
	ReasonCredentialMismatch Reason = "credential_mismatch"
	ReasonDeviceInactive     Reason = "device_inactive"
	ReasonMissingSignature   Reason = "missing_signature"
	ReasonClockDrift         Reason = "clock_drift"
	ReasonMissingSecret      Reason = "missing_secret"
	ReasonBadSignature       Reason = "bad_signature"
	ReasonMalformed          Reason = "malformed_request"
)

// Error is a verification failure. Its message is safe to log; callers
// facing a device should only expose HTTPStatus.
type Error struct {
	Reason   Reason
	DeviceID string
}

func (e *Error) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("device authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("device authentication failed for %s: %s", e.DeviceID, e.Reason)
}

func (e *Error) HTTPStatus() int {
	if e.Reason == ReasonMalformed {
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}

func fail(reason Reason, deviceID string) error {
	return &Error{Reason: reason, DeviceID: deviceID}
}
