// Package trace holds the recorded history of a multi-device run: steps
// grouped into checkpoints per device, all owned by one Flow.
package trace

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Step is one recorded unit: a command label or a visual snapshot.
// Steps are immutable once created.
type Step struct {
	ID           int
	CommandLabel string
	Snapshot     []byte
}

// NewCommandStep creates a step recording an invoked command.
func NewCommandStep(id int, label string) *Step {
	return &Step{ID: id, CommandLabel: label}
}

// NewSnapshotStep creates a label-less step holding a captured image.
func NewSnapshotStep(id int, data []byte) *Step {
	if data == nil {
		data = []byte{}
	}
	return &Step{ID: id, Snapshot: data}
}

// IsSnapshot reports whether the step holds a snapshot.
func (s *Step) IsSnapshot() bool {
	return s.Snapshot != nil
}

type stepJSON struct {
	ID           int             `json:"id"`
	CommandLabel json.RawMessage `json:"commandLabel"`
	Snapshot     []byte          `json:"snapshot"`
}

// MarshalJSON writes an empty label as [] to match the viewer format.
func (s Step) MarshalJSON() ([]byte, error) {
	label := json.RawMessage(`[]`)
	if s.CommandLabel != "" {
		encoded, err := json.Marshal(s.CommandLabel)
		if err != nil {
			return nil, err
		}
		label = encoded
	}
	return json.Marshal(stepJSON{ID: s.ID, CommandLabel: label, Snapshot: s.Snapshot})
}

// UnmarshalJSON accepts the label as a string or an array of strings.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	label, err := decodeLabel(raw.CommandLabel)
	if err != nil {
		return fmt.Errorf("step %d: %w", raw.ID, err)
	}
	*s = Step{ID: raw.ID, CommandLabel: label, Snapshot: raw.Snapshot}
	return nil
}

func decodeLabel(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var parts []string
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", fmt.Errorf("commandLabel: %w", err)
		}
		return strings.Join(parts, ", "), nil
	}
	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return "", fmt.Errorf("commandLabel: %w", err)
	}
	return label, nil
}

// StepFromJSON decodes a step.
func StepFromJSON(data []byte) (*Step, error) {
	var s Step
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Checkpoint is a named milestone holding the steps recorded on one device
// since the previous checkpoint.
type Checkpoint struct {
	ID    int
	Name  string
	Steps []*Step
}

// NewCheckpoint creates an empty checkpoint.
func NewCheckpoint(id int, name string) *Checkpoint {
	return &Checkpoint{ID: id, Name: name, Steps: []*Step{}}
}

type checkpointJSON struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Steps []*Step `json:"steps"`
}

// MarshalJSON implements json.Marshaler.
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	steps := c.Steps
	if steps == nil {
		steps = []*Step{}
	}
	return json.Marshal(checkpointJSON{ID: c.ID, Name: c.Name, Steps: steps})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var raw checkpointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Steps == nil {
		raw.Steps = []*Step{}
	}
	*c = Checkpoint{ID: raw.ID, Name: raw.Name, Steps: raw.Steps}
	return nil
}

// CheckpointFromJSON decodes a checkpoint.
func CheckpointFromJSON(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeviceLog is the trace of one device: closed checkpoints plus the steps
// recorded since the last one.
type DeviceLog struct {
	DeviceID      string
	DeviceOptions map[string]any
	Checkpoints   []*Checkpoint
	PendingSteps  []*Step
}

// NewDeviceLog creates an empty log. The device id is stored in the options
// under "id". Options are held in their JSON form, so numbers become float64
// and nested values become []any and map[string]any, exactly as a decoded
// log holds them.
func NewDeviceLog(deviceID string, options map[string]any) *DeviceLog {
	opts := normalizeOptions(options)
	opts["id"] = deviceID
	return &DeviceLog{
		DeviceID:      deviceID,
		DeviceOptions: opts,
		Checkpoints:   []*Checkpoint{},
		PendingSteps:  []*Step{},
	}
}

func normalizeOptions(options map[string]any) map[string]any {
	opts := make(map[string]any, len(options)+1)
	for k, v := range options {
		opts[k] = v
	}
	data, err := json.Marshal(opts)
	if err != nil {
		// not representable as JSON; kept as given and rejected on save
		return opts
	}
	normalized := make(map[string]any, len(opts))
	if err := json.Unmarshal(data, &normalized); err != nil {
		return opts
	}
	return normalized
}

// AddStep buffers a step until the next checkpoint.
func (d *DeviceLog) AddStep(step *Step) {
	d.PendingSteps = append(d.PendingSteps, step)
}

// AddCheckpoint moves the pending steps into cp, after any steps it already
// holds, and appends it.
func (d *DeviceLog) AddCheckpoint(cp *Checkpoint) {
	if cp.Steps == nil {
		cp.Steps = []*Step{}
	}
	cp.Steps = append(cp.Steps, d.PendingSteps...)
	d.Checkpoints = append(d.Checkpoints, cp)
	d.PendingSteps = []*Step{}
}

// StepCount returns the number of checkpointed and pending steps.
func (d *DeviceLog) StepCount() int {
	n := len(d.PendingSteps)
	for _, cp := range d.Checkpoints {
		n += len(cp.Steps)
	}
	return n
}

type deviceLogJSON struct {
	DeviceOptions map[string]any `json:"deviceOptions"`
	Checkpoints   []*Checkpoint  `json:"checkpoints"`
	PendingSteps  []*Step        `json:"pendingSteps"`
}

// MarshalJSON implements json.Marshaler.
func (d DeviceLog) MarshalJSON() ([]byte, error) {
	raw := deviceLogJSON{
		DeviceOptions: d.DeviceOptions,
		Checkpoints:   d.Checkpoints,
		PendingSteps:  d.PendingSteps,
	}
	if raw.DeviceOptions == nil {
		raw.DeviceOptions = map[string]any{}
	}
	if raw.Checkpoints == nil {
		raw.Checkpoints = []*Checkpoint{}
	}
	if raw.PendingSteps == nil {
		raw.PendingSteps = []*Step{}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler. The device id is taken from the
// "id" option.
func (d *DeviceLog) UnmarshalJSON(data []byte) error {
	var raw deviceLogJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.DeviceOptions == nil {
		raw.DeviceOptions = map[string]any{}
	}
	if raw.Checkpoints == nil {
		raw.Checkpoints = []*Checkpoint{}
	}
	if raw.PendingSteps == nil {
		raw.PendingSteps = []*Step{}
	}
	id, _ := raw.DeviceOptions["id"].(string)
	*d = DeviceLog{
		DeviceID:      id,
		DeviceOptions: raw.DeviceOptions,
		Checkpoints:   raw.Checkpoints,
		PendingSteps:  raw.PendingSteps,
	}
	return nil
}

// DeviceLogFromJSON decodes a device log.
func DeviceLogFromJSON(data []byte) (*DeviceLog, error) {
	var d DeviceLog
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
