package config

import (
	"fmt"
	"sort"

	lserrors "github.com/odvcencio/lockstep/pkg/errors"
)

// TemplateKey names a template inside a device mapping. The remaining keys
// override the template's options.
const TemplateKey = "template"

var deviceTemplates = map[string]func() map[string]any{
	"chrome": func() map[string]any {
		return map[string]any{
			"name":                "Chrome",
			"desiredCapabilities": map[string]any{"browserName": "chrome"},
		}
	},
	"firefox": func() map[string]any {
		return map[string]any{
			"name":                "Firefox",
			"desiredCapabilities": map[string]any{"browserName": "firefox"},
		}
	},
	"nexus4": func() map[string]any {
		return map[string]any{
			"name": "Nexus 4",
			"desiredCapabilities": map[string]any{
				"browserName": "chrome",
				"chromeOptions": map[string]any{
					"mobileEmulation": map[string]any{"deviceName": "Google Nexus 4"},
				},
			},
		}
	},
}

// DeviceTemplate returns a fresh copy of the options of a named template.
func DeviceTemplate(name string) (map[string]any, bool) {
	build, ok := deviceTemplates[name]
	if !ok {
		return nil, false
	}
	return build(), true
}

// DeviceTemplateNames lists the known templates.
func DeviceTemplateNames() []string {
	names := make([]string, 0, len(deviceTemplates))
	for name := range deviceTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveTemplate expands options carrying a template key. Keys other than
// the template key replace the template's top-level options.
func resolveTemplate(id string, options map[string]any) (map[string]any, error) {
	raw, ok := options[TemplateKey]
	if !ok {
		return options, nil
	}
	name, _ := raw.(string)
	base, ok := DeviceTemplate(name)
	if !ok {
		return nil, lserrors.New(lserrors.ErrCodeConfigInvalid,
			fmt.Sprintf("devices.%s: unknown template %v", id, raw)).
			WithRemediation(fmt.Sprintf("use one of %v", DeviceTemplateNames()))
	}
	for k, v := range options {
		if k != TemplateKey {
			base[k] = v
		}
	}
	return base, nil
}
