package msa

import (
	"errors"
	"fmt"
)

// Sentinel errors for the device-code poll loop and flow control.
var (
	// ErrAuthorizationPending means the user has not approved the device
	// code yet; polling should continue.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrSlowDown means the provider wants a longer polling interval.
	ErrSlowDown = errors.New("slow down")

	// ErrCodeExpired means the device code's validity window elapsed
	// before the user approved it.
	ErrCodeExpired = errors.New("device code expired")

	// ErrAuthDeclined means the user explicitly denied the request.
	ErrAuthDeclined = errors.New("authorization declined")
)

// AuthError is a provider-reported authentication error. Its message is
// preserved verbatim for display; transport failures are wrapped as plain
// errors instead.
type AuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *AuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Is maps well-known OAuth error codes onto the poll sentinels so callers
// can use errors.Is without inspecting strings.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrAuthorizationPending:
		return e.Code == "authorization_pending"
	case ErrSlowDown:
		return e.Code == "slow_down"
	case ErrCodeExpired:
		return e.Code == "expired_token"
	case ErrAuthDeclined:
		return e.Code == "authorization_declined" || e.Code == "access_denied"
	}
	return false
}

// XSTSError is the Xbox security token service's structured denial. XErr
// codes are translated to a friendly reason where known.
type XSTSError struct {
	XErr    int64  `json:"XErr"`
	Message string `json:"Message"`
}

func (e *XSTSError) Error() string {
	if reason, ok := xerrReasons[e.XErr]; ok {
		return reason
	}
	if e.Message != "" {
		return fmt.Sprintf("xsts denied (XErr %d): %s", e.XErr, e.Message)
	}
	return fmt.Sprintf("xsts denied (XErr %d)", e.XErr)
}

var xerrReasons = map[int64]string{
	2148916233: "this Microsoft account has no Xbox profile",
	2148916235: "Xbox Live is not available in this region",
	2148916236: "adult verification is required on the Xbox page",
	2148916237: "adult verification is required on the Xbox page",
	2148916238: "this account belongs to a minor and must be added to a family",
}
