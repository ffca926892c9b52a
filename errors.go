package dashboard

import (
	"errors"
	"fmt"
)

// Sentinel errors for precondition rejections. These are not failure states:
// a rejected call performs no state change and no network call.
var (
	// ErrBlockedByMode is returned when a relay toggle is attempted while
	// the controller is in automatic mode.
	ErrBlockedByMode = errors.New("toggle blocked: controller in automatic mode")

	// ErrWritePending is returned when a toggle is attempted while a write
	// for the same actuator is still in flight. Concurrent toggles on one
	// actuator are rejected, not queued.
	ErrWritePending = errors.New("write already in progress for actuator")

	// ErrUnknownActuator is returned when an actuator id is not configured.
	ErrUnknownActuator = errors.New("unknown actuator")

	// ErrStopped is returned from intents issued after shutdown.
	ErrStopped = errors.New("coordinator stopped")

	// ErrConfig marks configuration errors. These are fatal at
	// construction time, never silently resolved at runtime.
	ErrConfig = errors.New("invalid configuration")
)

// FetchError is a transient data-source failure (network error, timeout).
// It is retryable: existing merged data is never discarded because of one.
type FetchError struct {
	// Op names the failed operation: "bulk", "poll", "probe", "catch-up".
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubscriptionLostError indicates the push channel dropped. The listener
// enters the degraded state and a catch-up fetch runs on reconnect; the
// error itself is not fatal.
type SubscriptionLostError struct {
	Channel string
	Err     error
}

func (e *SubscriptionLostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("subscription lost: %s", e.Channel)
	}
	return fmt.Sprintf("subscription lost: %s: %v", e.Channel, e.Err)
}

func (e *SubscriptionLostError) Unwrap() error { return e.Err }

// WriteError is a rejected command-sink write. The controller has already
// rolled the actuator's desired state back to the last confirmed value by
// the time this surfaces.
type WriteError struct {
	ActuatorID string
	CommandID  string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write rejected for actuator %s: %v", e.ActuatorID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable fetch or subscription
// failure, as opposed to a rejection or configuration error.
func IsTransient(err error) bool {
	var fe *FetchError
	var se *SubscriptionLostError
	return errors.As(err, &fe) || errors.As(err, &se)
}
