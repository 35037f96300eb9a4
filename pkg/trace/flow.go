package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	lserrors "github.com/odvcencio/lockstep/pkg/errors"
)

// Flow is the full trace of one run across all its devices. It owns id
// generation, so step and checkpoint ids are unique across devices and can be
// interleaved by id. Flow is safe for concurrent use.
type Flow struct {
	mu sync.Mutex
	// storeMu serializes StoreIfChanged so concurrent session ends persist once.
	storeMu sync.Mutex

	id               string
	name             *string
	devices          map[string]*DeviceLog
	order            []string
	nextStepID       int
	nextCheckpointID int

	// version counts mutations; the flow is dirty while it differs from
	// storedVersion.
	version       uint64
	storedVersion uint64
}

// Option configures a new Flow.
type Option func(*Flow)

// WithID sets the flow id instead of generating a ULID.
func WithID(id string) Option {
	return func(f *Flow) { f.id = id }
}

// WithStartIDs sets the first step and checkpoint ids.
func WithStartIDs(step, checkpoint int) Option {
	return func(f *Flow) {
		f.nextStepID = step
		f.nextCheckpointID = checkpoint
	}
}

// NewFlow creates an empty, clean flow.
func NewFlow(opts ...Option) *Flow {
	f := &Flow{devices: make(map[string]*DeviceLog)}
	for _, opt := range opts {
		opt(f)
	}
	if f.id == "" {
		f.id = ulid.Make().String()
	}
	return f
}

// ID returns the flow id.
func (f *Flow) ID() string {
	return f.id
}

// Name returns the display name, if one was set.
func (f *Flow) Name() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.name == nil {
		return "", false
	}
	return *f.name, true
}

// SetName sets the display name.
func (f *Flow) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name = &name
	f.version++
}

// GenerateStepID returns the next step id.
func (f *Flow) GenerateStepID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stepIDLocked()
}

// GenerateCheckpointID returns the next checkpoint id.
func (f *Flow) GenerateCheckpointID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpointIDLocked()
}

func (f *Flow) stepIDLocked() int {
	id := f.nextStepID
	f.nextStepID++
	return id
}

func (f *Flow) checkpointIDLocked() int {
	id := f.nextCheckpointID
	f.nextCheckpointID++
	return id
}

// AddDevice registers a device. Registering devices does not make the flow
// dirty.
func (f *Flow) AddDevice(deviceID string, options map[string]any) (*DeviceLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.devices[deviceID]; exists {
		return nil, lserrors.New(lserrors.ErrCodeDuplicateDevice, "device already part of the flow").
			WithContext("device_id", deviceID)
	}
	log := NewDeviceLog(deviceID, options)
	f.devices[deviceID] = log
	f.order = append(f.order, deviceID)
	return log, nil
}

// Device returns the log of a device. The log must only be read once no
// goroutine records into the flow anymore.
func (f *Flow) Device(deviceID string) (*DeviceLog, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.devices[deviceID]
	return log, ok
}

// DeviceIDs returns the device ids in registration order.
func (f *Flow) DeviceIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *Flow) deviceLocked(deviceID string) (*DeviceLog, error) {
	log, ok := f.devices[deviceID]
	if !ok {
		return nil, lserrors.NewUnknownDevice(deviceID)
	}
	return log, nil
}

// RecordCommand appends a command step to a device's pending steps.
func (f *Flow) RecordCommand(deviceID, label string) (*Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, err := f.deviceLocked(deviceID)
	if err != nil {
		return nil, err
	}
	step := NewCommandStep(f.stepIDLocked(), label)
	log.AddStep(step)
	f.version++
	return step, nil
}

// RecordSnapshot appends a snapshot step to a device's pending steps.
func (f *Flow) RecordSnapshot(deviceID string, data []byte) (*Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, err := f.deviceLocked(deviceID)
	if err != nil {
		return nil, err
	}
	step := NewSnapshotStep(f.stepIDLocked(), data)
	log.AddStep(step)
	f.version++
	return step, nil
}

// CloseCheckpoint closes the device's pending steps into a new named
// checkpoint.
func (f *Flow) CloseCheckpoint(deviceID, name string) (*Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, err := f.deviceLocked(deviceID)
	if err != nil {
		return nil, err
	}
	cp := NewCheckpoint(f.checkpointIDLocked(), name)
	log.AddCheckpoint(cp)
	f.version++
	return cp, nil
}

// Dirty reports whether the flow changed since it was last stored.
func (f *Flow) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version != f.storedVersion
}

// StoreIfChanged saves the flow when it is dirty and reports whether it did.
// A flow that changes while being saved stays dirty.
func (f *Flow) StoreIfChanged(ctx context.Context, store FlowStore) (bool, error) {
	f.storeMu.Lock()
	defer f.storeMu.Unlock()

	f.mu.Lock()
	if f.version == f.storedVersion {
		f.mu.Unlock()
		return false, nil
	}
	version := f.version
	f.mu.Unlock()

	if err := store.Save(ctx, f); err != nil {
		return false, err
	}

	f.mu.Lock()
	if version > f.storedVersion {
		f.storedVersion = version
	}
	f.mu.Unlock()
	return true, nil
}

// Steps returns every step of every device ordered by id.
func (f *Flow) Steps() []*Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	var steps []*Step
	for _, id := range f.order {
		log := f.devices[id]
		for _, cp := range log.Checkpoints {
			steps = append(steps, cp.Steps...)
		}
		steps = append(steps, log.PendingSteps...)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].ID < steps[j].ID })
	return steps
}

// DeviceSummary counts what was recorded on one device.
type DeviceSummary struct {
	DeviceID    string
	Checkpoints []string
	Steps       int
	Snapshots   int
	Pending     int
}

// Summary returns per-device counts in registration order.
func (f *Flow) Summary() []DeviceSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DeviceSummary, 0, len(f.order))
	for _, id := range f.order {
		log := f.devices[id]
		s := DeviceSummary{DeviceID: id, Pending: len(log.PendingSteps)}
		count := func(steps []*Step) {
			for _, step := range steps {
				s.Steps++
				if step.IsSnapshot() {
					s.Snapshots++
				}
			}
		}
		for _, cp := range log.Checkpoints {
			s.Checkpoints = append(s.Checkpoints, cp.Name)
			count(cp.Steps)
		}
		count(log.PendingSteps)
		out = append(out, s)
	}
	return out
}

type flowJSON struct {
	ID               string                `json:"id"`
	Name             *string               `json:"name"`
	NextStepID       int                   `json:"nextStepId"`
	NextCheckpointID int                   `json:"nextCheckpointId"`
	DeviceOrder      []string              `json:"deviceOrder"`
	Devices          map[string]*DeviceLog `json:"devices"`
}

// MarshalJSON implements json.Marshaler.
func (f *Flow) MarshalJSON() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := f.order
	if order == nil {
		order = []string{}
	}
	return json.Marshal(flowJSON{
		ID:               f.id,
		Name:             f.name,
		NextStepID:       f.nextStepID,
		NextCheckpointID: f.nextCheckpointID,
		DeviceOrder:      order,
		Devices:          f.devices,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The decoded flow is clean.
// Devices missing from deviceOrder are appended in sorted order.
func (f *Flow) UnmarshalJSON(data []byte) error {
	var raw flowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	devices := raw.Devices
	if devices == nil {
		devices = make(map[string]*DeviceLog)
	}
	order := make([]string, 0, len(devices))
	seen := make(map[string]bool, len(devices))
	for _, id := range raw.DeviceOrder {
		if _, ok := devices[id]; !ok {
			return fmt.Errorf("deviceOrder names unknown device %q", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
	}
	var rest []string
	for id := range devices {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	for id, log := range devices {
		if log == nil {
			log = NewDeviceLog(id, nil)
			devices[id] = log
		}
		log.DeviceID = id
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.id = raw.ID
	f.name = raw.Name
	f.nextStepID = raw.NextStepID
	f.nextCheckpointID = raw.NextCheckpointID
	f.order = order
	f.devices = devices
	f.version = 0
	f.storedVersion = 0
	return nil
}

// FlowFromJSON decodes a flow.
func FlowFromJSON(data []byte) (*Flow, error) {
	f := &Flow{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, err
	}
	return f, nil
}
