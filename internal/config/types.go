// Package config holds the validated configuration tree and the mutable
// current-link selection, following the tagged-variant sum-type design the
// spec requires (§9: "class hierarchies -> tagged variants").
package config

import (
	"encoding/json"
	"fmt"
)

// SupportedConfigVersion is the only config_version this build accepts; per
// §4.2 there is no silent migration.
const SupportedConfigVersion = 1

type SourceKind string

const (
	SourceEvdevUdev       SourceKind = "evdev_udev"
	SourceEvdevUnixSocket SourceKind = "evdev_unix_socket"
)

type DestinationKind string

const (
	DestUinput     DestinationKind = "uinput"
	DestSubprocess DestinationKind = "subprocess"
	DestHIDGadget  DestinationKind = "hid_gadget"
)

// TransformConfig is a tagged variant: {type, properties}.
type TransformConfig struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// ActivatorConfig is a tagged variant: {type, properties}.
type ActivatorConfig struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// HotkeyProperties decodes an ActivatorConfig of type "hotkey".
type HotkeyProperties struct {
	Hotkey struct {
		Key       string   `json:"key"`
		Modifiers []string `json:"modifiers"`
	} `json:"hotkey"`
}

// Source is the tagged variant {evdev_udev, evdev_unix_socket}.
type Source struct {
	Name       string
	Kind       SourceKind
	UdevAttrs  map[string]string // evdev_udev
	Host       string            // evdev_unix_socket
	Vendor     string            // evdev_unix_socket
	Product    string            // evdev_unix_socket
	Transforms []TransformConfig
}

type sourceJSON struct {
	Name       string            `json:"name"`
	Type       SourceKind        `json:"type"`
	Transforms []TransformConfig `json:"transforms"`
	Properties json.RawMessage   `json:"properties"`
}

type udevProperties struct {
	UdevAttrs map[string]string `json:"udev_attrs"`
}

type socketProperties struct {
	Host    string `json:"host"`
	Vendor  string `json:"vendor"`
	Product string `json:"product"`
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var raw sourceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Kind = raw.Type
	s.Transforms = raw.Transforms
	switch raw.Type {
	case SourceEvdevUdev:
		var p udevProperties
		if len(raw.Properties) > 0 {
			if err := json.Unmarshal(raw.Properties, &p); err != nil {
				return fmt.Errorf("source %q: %w", raw.Name, err)
			}
		}
		s.UdevAttrs = p.UdevAttrs
	case SourceEvdevUnixSocket:
		var p socketProperties
		if len(raw.Properties) > 0 {
			if err := json.Unmarshal(raw.Properties, &p); err != nil {
				return fmt.Errorf("source %q: %w", raw.Name, err)
			}
		}
		s.Host, s.Vendor, s.Product = p.Host, p.Vendor, p.Product
	default:
		return fmt.Errorf("source %q: unknown type %q", raw.Name, raw.Type)
	}
	return nil
}

// Identifier is the derived identity used to match a Source to a live
// SourceDevice: the udev attribute map for evdev_udev, or the
// (host, vendor, product) triple for evdev_unix_socket.
type Identifier struct {
	Kind    SourceKind
	Udev    map[string]string
	Host    string
	Vendor  string
	Product string
}

// Equal is structural equality, as required for heterogeneous identifiers.
func (id Identifier) Equal(other Identifier) bool {
	if id.Kind != other.Kind {
		return false
	}
	switch id.Kind {
	case SourceEvdevUnixSocket:
		return id.Host == other.Host && id.Vendor == other.Vendor && id.Product == other.Product
	default:
		if len(id.Udev) != len(other.Udev) {
			return false
		}
		for k, v := range id.Udev {
			if other.Udev[k] != v {
				return false
			}
		}
		return true
	}
}

func (s Source) Identifier() Identifier {
	return Identifier{
		Kind:    s.Kind,
		Udev:    s.UdevAttrs,
		Host:    s.Host,
		Vendor:  s.Vendor,
		Product: s.Product,
	}
}

// SourceGroup names N member sources. Groups must partition the sources
// they reference (enforced at validation, not here).
type SourceGroup struct {
	Name    string   `json:"name"`
	Sources []string `json:"sources"`
}

// Destination is the tagged variant {uinput, subprocess, hid_gadget}.
type Destination struct {
	Name          string
	Kind          DestinationKind
	Command       []string // subprocess
	HIDGadgetPath string   // hid_gadget
}

type destinationJSON struct {
	Name       string          `json:"name"`
	Type       DestinationKind `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

type subprocessProperties struct {
	Command []string `json:"command"`
}

type hidGadgetProperties struct {
	Path string `json:"path"`
}

func (d *Destination) UnmarshalJSON(data []byte) error {
	var raw destinationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Name = raw.Name
	d.Kind = raw.Type
	switch raw.Type {
	case DestUinput:
		// no properties required
	case DestSubprocess:
		var p subprocessProperties
		if len(raw.Properties) > 0 {
			if err := json.Unmarshal(raw.Properties, &p); err != nil {
				return fmt.Errorf("destination %q: %w", raw.Name, err)
			}
		}
		d.Command = p.Command
	case DestHIDGadget:
		var p hidGadgetProperties
		if len(raw.Properties) > 0 {
			if err := json.Unmarshal(raw.Properties, &p); err != nil {
				return fmt.Errorf("destination %q: %w", raw.Name, err)
			}
		}
		if p.Path == "" {
			p.Path = "/dev/hidg0"
		}
		d.HIDGadgetPath = p.Path
	default:
		return fmt.Errorf("destination %q: unknown type %q", raw.Name, raw.Type)
	}
	return nil
}

// Link is a routing edge: source_group -> destination, optionally guarded
// by activators.
type Link struct {
	SourceGroup string            `json:"source_group"`
	Destination string            `json:"destination"`
	Activators  []ActivatorConfig `json:"activators"`
}

// Config is the immutable-after-load top-level document.
type Config struct {
	ConfigVersion int                    `json:"config_version"`
	Sources       map[string]Source      `json:"-"`
	SourceGroups  map[string]SourceGroup `json:"-"`
	Destinations  map[string]Destination `json:"-"`
	Links         []Link                 `json:"links"`
}

type configJSON struct {
	ConfigVersion int           `json:"config_version"`
	Sources       []Source      `json:"sources"`
	SourceGroups  []SourceGroup `json:"source_groups"`
	Destinations  []Destination `json:"destinations"`
	Links         []Link        `json:"links"`
}

func Parse(data []byte) (*Config, error) {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg := &Config{
		ConfigVersion: raw.ConfigVersion,
		Sources:       make(map[string]Source, len(raw.Sources)),
		SourceGroups:  make(map[string]SourceGroup, len(raw.SourceGroups)),
		Destinations:  make(map[string]Destination, len(raw.Destinations)),
		Links:         raw.Links,
	}
	for _, s := range raw.Sources {
		cfg.Sources[s.Name] = s
	}
	for _, g := range raw.SourceGroups {
		cfg.SourceGroups[g.Name] = g
	}
	for _, d := range raw.Destinations {
		cfg.Destinations[d.Name] = d
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
