package flow

import (
	"errors"
	"fmt"
)

// ErrCancelled rejects the session future of a flow that was cancelled
// cooperatively. It is not a failure: observers see StageCancelled, not
// StageFailed.
var ErrCancelled = errors.New("flow cancelled")

// ConfigError marks a non-retryable setup problem (malformed login URL,
// callback port mismatch). These never come from the provider.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
