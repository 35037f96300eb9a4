package errors

import (
	"fmt"
	"time"
)

// Sentinels for errors.Is. Matching is by code, so any error built by the
// constructors below satisfies errors.Is against the sentinel of its kind.
var (
	ErrInvalidCondition  = &Error{Code: ErrCodeWaitInvalidCondition, Message: "invalid wait condition"}
	ErrWaitTimeout       = &Error{Code: ErrCodeWaitTimeout, Message: "wait timed out"}
	ErrWaitAborted       = &Error{Code: ErrCodeWaitAborted, Message: "wait aborted"}
	ErrConditionFalsy    = &Error{Code: ErrCodeWaitConditionFalsy, Message: "condition resolved falsy"}
	ErrConditionRejected = &Error{Code: ErrCodeWaitConditionRejected, Message: "condition rejected"}
	ErrUnknownDevice     = &Error{Code: ErrCodeUnknownDevice, Message: "unknown device"}
	ErrBroadcastFailed   = &Error{Code: ErrCodeBroadcastFailed, Message: "broadcast failed"}
	ErrFlowNotFound      = &Error{Code: ErrCodeStorageNotFound, Message: "flow not found"}
)

// NewInvalidCondition reports a wait condition that is neither a probe nor a
// pending value.
func NewInvalidCondition(condition any) *Error {
	return New(ErrCodeWaitInvalidCondition,
		"wait condition needs to be a pending value or a function that returns one").
		WithContext("type", fmt.Sprintf("%T", condition))
}

// NewWaitTimeout reports a condition that never resolved truthy within timeout.
func NewWaitTimeout(timeout time.Duration) *Error {
	return New(ErrCodeWaitTimeout, "condition never resolved with a truthy value").
		WithContext("timeout", timeout.String()).
		WithRetryable(true)
}

// NewWaitAborted reports a wait stopped by its abort signal.
func NewWaitAborted(cause error) *Error {
	e := New(ErrCodeWaitAborted, "wait aborted before the condition was satisfied")
	e.Underlying = cause
	return e
}

// NewConditionFalsy reports a pending condition that resolved with a falsy value.
func NewConditionFalsy(value any) *Error {
	return New(ErrCodeWaitConditionFalsy, "condition was fulfilled with a falsy value").
		WithContext("value", value)
}

// NewConditionRejected reports a condition that failed; reason stays reachable
// through Unwrap.
func NewConditionRejected(reason error) *Error {
	e := New(ErrCodeWaitConditionRejected, "condition was rejected")
	e.Underlying = reason
	return e
}

// NewUnknownDevice reports a device id that is not configured.
func NewUnknownDevice(deviceID string) *Error {
	return New(ErrCodeUnknownDevice, "device is not configured").
		WithContext("device_id", deviceID).
		WithRemediation("check the devices section of the lockstep config")
}
