package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeUnknownDevice, "device C not found")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodeUnknownDevice {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnknownDevice)
	}

	if err.Message != "device C not found" {
		t.Errorf("Message = %v, want 'device C not found'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}

	if err.Retryable {
		t.Error("Retryable should default to false")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("original error")
	err := Wrap(underlying, ErrCodeStorageRead, "failed to read flow")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if err.Code != ErrCodeStorageRead {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStorageRead)
	}

	if !strings.Contains(err.Error(), "original error") {
		t.Error("Error string should include underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	err := Wrap(nil, ErrCodeInternal, "test")

	if err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestWithContext_SortedInMessage(t *testing.T) {
	err := New(ErrCodeBroadcastFailed, "broadcast failed")
	err.WithContext("command", "click")
	err.WithContext("attempt", 1)

	if err.Context["command"] != "click" {
		t.Error("Context should contain 'command' key")
	}

	got := err.Error()
	want := "[BROADCAST_FAILED] broadcast failed {attempt: 1, command: click}"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWithRemediation_Copies(t *testing.T) {
	tips := []string{"a", "b"}
	err := New(ErrCodeConfigInvalid, "bad").WithRemediation(tips...)
	tips[0] = "changed"

	if err.Remediation[0] != "a" {
		t.Errorf("Remediation should be copied, got %v", err.Remediation)
	}
}

func TestSentinels_MatchByCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid condition", NewInvalidCondition(42), ErrInvalidCondition},
		{"timeout", NewWaitTimeout(time.Second), ErrWaitTimeout},
		{"aborted", NewWaitAborted(nil), ErrWaitAborted},
		{"falsy", NewConditionFalsy(false), ErrConditionFalsy},
		{"rejected", NewConditionRejected(errors.New("boom")), ErrConditionRejected},
		{"unknown device", NewUnknownDevice("C"), ErrUnknownDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false", tt.err)
			}
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is through fmt wrap = false")
			}
		})
	}

	if errors.Is(NewWaitTimeout(time.Second), ErrWaitAborted) {
		t.Error("timeout must not match the aborted sentinel")
	}
}

func TestConditionRejected_UnwrapsReason(t *testing.T) {
	reason := errors.New("element not found")
	err := NewConditionRejected(reason)

	if !errors.Is(err, reason) {
		t.Error("rejection reason should be reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "element not found") {
		t.Errorf("Error() = %q, should include reason", err.Error())
	}
}

func TestWaitTimeout_Retryable(t *testing.T) {
	if !IsRetryable(NewWaitTimeout(time.Second)) {
		t.Error("timeouts should be retryable")
	}
	if IsRetryable(NewWaitAborted(nil)) {
		t.Error("aborts should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestIsCode_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("select: %w", NewUnknownDevice("Z"))

	if !IsCode(err, ErrCodeUnknownDevice) {
		t.Error("IsCode should look through wrapped errors")
	}
	if IsCode(err, ErrCodeWaitTimeout) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(nil, ErrCodeUnknownDevice) {
		t.Error("IsCode(nil) should be false")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %q, want empty", got)
	}
	if got := GetCode(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("GetCode(plain) = %q, want %q", got, ErrCodeInternal)
	}
	if got := GetCode(NewWaitAborted(nil)); got != ErrCodeWaitAborted {
		t.Errorf("GetCode = %q, want %q", got, ErrCodeWaitAborted)
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "x")
	trace := err.StackTrace()
	if !strings.HasPrefix(trace, "Stack trace:\n") {
		t.Errorf("unexpected stack trace header: %q", trace)
	}
	if !strings.Contains(trace, "TestStackTrace") {
		t.Errorf("stack trace should mention the caller, got %q", trace)
	}
}

func TestStackStartsAtCaller(t *testing.T) {
	for name, err := range map[string]*Error{
		"new":  New(ErrCodeInternal, "x"),
		"wrap": Wrap(errors.New("cause"), ErrCodeInternal, "x"),
	} {
		if len(err.Stack) == 0 {
			t.Fatalf("%s: empty stack", name)
		}
		if fn := err.Stack[0].Function; !strings.HasSuffix(fn, "TestStackStartsAtCaller") {
			t.Errorf("%s: first frame = %q, want the calling test", name, fn)
		}
		if !strings.HasSuffix(err.Stack[0].File, "types_test.go") {
			t.Errorf("%s: first frame file = %q", name, err.Stack[0].File)
		}
	}
}
