package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Device is one configured device: its id and arbitrary driver options.
type Device struct {
	ID      string
	Options map[string]any
}

// Devices is an ordered mapping from device id to options. The YAML mapping
// order is the broadcast iteration order.
type Devices struct {
	items []Device
}

// NewDevices builds an ordered device set. Later duplicates replace earlier
// options but keep the first position.
func NewDevices(devices ...Device) Devices {
	var d Devices
	for _, dev := range devices {
		d.Set(dev.ID, dev.Options)
	}
	return d
}

// Set adds or replaces a device.
func (d *Devices) Set(id string, options map[string]any) {
	if options == nil {
		options = map[string]any{}
	}
	for i := range d.items {
		if d.items[i].ID == id {
			d.items[i].Options = options
			return
		}
	}
	d.items = append(d.items, Device{ID: id, Options: options})
}

// Get returns the options of a device.
func (d Devices) Get(id string) (map[string]any, bool) {
	for _, dev := range d.items {
		if dev.ID == id {
			return dev.Options, true
		}
	}
	return nil, false
}

// Len returns the number of devices.
func (d Devices) Len() int {
	return len(d.items)
}

// IDs returns the device ids in configuration order.
func (d Devices) IDs() []string {
	ids := make([]string, 0, len(d.items))
	for _, dev := range d.items {
		ids = append(ids, dev.ID)
	}
	return ids
}

// All returns copies of the devices in configuration order.
func (d Devices) All() []Device {
	out := make([]Device, 0, len(d.items))
	for _, dev := range d.items {
		opts := make(map[string]any, len(dev.Options))
		for k, v := range dev.Options {
			opts[k] = v
		}
		out = append(out, Device{ID: dev.ID, Options: opts})
	}
	return out
}

// UnmarshalYAML keeps the mapping order of the devices section. A device
// given as a bare name, or with a template key, starts from that template.
func (d *Devices) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("devices: expected a mapping, got %s", nodeKind(node.Kind))
	}
	d.items = nil
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var id string
		if err := keyNode.Decode(&id); err != nil {
			return fmt.Errorf("devices: decoding id at line %d: %w", keyNode.Line, err)
		}
		options := map[string]any{}
		switch {
		case valueNode.Kind == yaml.ScalarNode && valueNode.Tag == "!!null":
		case valueNode.Kind == yaml.ScalarNode:
			options[TemplateKey] = valueNode.Value
		default:
			if err := valueNode.Decode(&options); err != nil {
				return fmt.Errorf("devices.%s: %w", id, err)
			}
		}
		resolved, err := resolveTemplate(id, options)
		if err != nil {
			return err
		}
		d.Set(id, resolved)
	}
	return nil
}

// MarshalYAML writes the devices as a mapping in configuration order.
func (d Devices) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, dev := range d.items {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: dev.ID}
		value := &yaml.Node{}
		if err := value.Encode(dev.Options); err != nil {
			return nil, fmt.Errorf("devices.%s: %w", dev.ID, err)
		}
		node.Content = append(node.Content, key, value)
	}
	return node, nil
}

func nodeKind(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
