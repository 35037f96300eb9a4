package proxy

import (
	"fmt"
	"strconv"

	"github.com/odvcencio/lockstep/pkg/browser"
)

// Commands handled by the proxy itself.
const (
	CommandCheckpoint = "checkpoint"
	CommandName       = "name"
	CommandGetFlow    = "getFlow"
)

// Reasons a command is never recorded.
const (
	ReasonProtocolQuery   = "protocol query"
	ReasonStateQuery      = "state query"
	ReasonCookie          = "cookie access"
	ReasonPropertyQuery   = "property query"
	ReasonLifecycle       = "interferes with the session lifecycle"
	ReasonNoSideEffects   = "no side effects"
	ReasonInternalElement = "internal web element command"
	ReasonRecording       = "part of the recording mechanism"
)

// kindReasons lists the catalogue kinds that are never recorded. Navigation
// and actions are recorded.
var kindReasons = map[browser.CommandKind]string{
	browser.KindProtocol:  ReasonProtocolQuery,
	browser.KindElement:   ReasonInternalElement,
	browser.KindState:     ReasonStateQuery,
	browser.KindCookie:    ReasonCookie,
	browser.KindProperty:  ReasonPropertyQuery,
	browser.KindLifecycle: ReasonLifecycle,
	browser.KindSnapshot:  ReasonLifecycle,
	browser.KindUtility:   ReasonNoSideEffects,
}

var recordingCommands = map[string]bool{
	CommandCheckpoint: true,
	CommandName:       true,
	CommandGetFlow:    true,
}

// Excluded reports whether a command is never recorded, and why. Commands
// outside the catalogue are recorded.
func Excluded(name string) (string, bool) {
	if recordingCommands[name] {
		return ReasonRecording, true
	}
	kind, ok := browser.Lookup(name)
	if !ok {
		return "", false
	}
	reason, ok := kindReasons[kind]
	return reason, ok
}

// Label renders the step label of a command: its name plus the first
// argument inline when that is a simple scalar.
func Label(name string, args ...any) string {
	if len(args) == 0 {
		return name
	}
	switch v := args[0].(type) {
	case string:
		return fmt.Sprintf("%s('%s')", name, v)
	case bool:
		return fmt.Sprintf("%s(%t)", name, v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%s(%d)", name, v)
	case float32:
		return fmt.Sprintf("%s(%s)", name, strconv.FormatFloat(float64(v), 'f', -1, 32))
	case float64:
		return fmt.Sprintf("%s(%s)", name, strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return name
	}
}
