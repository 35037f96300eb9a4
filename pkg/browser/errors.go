package browser

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable      = errors.New("browser runtime unavailable")
	ErrSessionClosed    = errors.New("browser session closed")
	ErrSessionExists    = errors.New("session already exists")
	ErrEmptySnapshot    = errors.New("screenshot returned no data")
	ErrConnectionLost   = errors.New("driver connection lost")
	ErrOperationTimeout = errors.New("operation timeout")
)

// Driver error codes.
const (
	DriverCodeConnectionLost = "connection_lost"
	DriverCodeUnavailable    = "unavailable"
	DriverCodeTimeout        = "timeout"
	DriverCodeSessionClosed  = "session_closed"
)

// DriverError wraps errors reported by a remote-control driver with the
// command that failed.
type DriverError struct {
	Code    string
	Command string
	Message string
	Err     error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver error [%s] %s: %s: %v", e.Code, e.Command, e.Message, e.Err)
	}
	return fmt.Sprintf("driver error [%s] %s: %s", e.Code, e.Command, e.Message)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// NewDriverError creates a new DriverError.
func NewDriverError(code, command, message string) *DriverError {
	return &DriverError{Code: code, Command: command, Message: message}
}

// WrapDriverError wraps an existing error with driver context.
func WrapDriverError(code, command, message string, err error) *DriverError {
	return &DriverError{Code: code, Command: command, Message: message, Err: err}
}

// IsConnectionError reports whether err means the device can no longer be
// driven.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) {
		return true
	}
	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		return driverErr.Code == DriverCodeConnectionLost || driverErr.Code == DriverCodeUnavailable
	}
	return false
}

// IsRetryableError reports whether repeating the command may succeed.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrOperationTimeout) {
		return true
	}
	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		switch driverErr.Code {
		case DriverCodeConnectionLost, DriverCodeTimeout, DriverCodeUnavailable:
			return true
		}
	}
	return false
}
