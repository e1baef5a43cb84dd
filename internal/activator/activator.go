// Package activator implements the per-link hotkey recognizer: it matches
// against the source's current pressed-key set and fires a callback
// activator callbacks invoke cycle_link on the Config Store.
package activator

import (
	"encoding/json"
	"fmt"

	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/internal/keycode"
	"github.com/evdev-transformer/evdev-transformer/internal/script"
)

// Activator is tried, in link order, against every transformed event.
type Activator interface {
	// Matches reports whether ev, combined with the keys already held in
	// pressed, completes this activator's combo. ev is the event about to
	// be applied; pressed reflects state as of before ev (state update
	// happens only after the activator check, not before).
	Matches(pressed map[uint16]struct{}, ev ievent.Event) bool
	// Fire invokes the configured callback (cycle_link).
	Fire()
}

// Hotkey matches a single key-down event while a set of modifiers is held.
type Hotkey struct {
	Key       uint16
	Modifiers []uint16
	Callback  func()
}

func (h *Hotkey) Matches(pressed map[uint16]struct{}, ev ievent.Event) bool {
	if ev.Type != ievent.EvKey || ev.Value != ievent.KeyDown || ev.Code != h.Key {
		return false
	}
	for _, m := range h.Modifiers {
		if _, held := pressed[m]; !held {
			return false
		}
	}
	return true
}

func (h *Hotkey) Fire() {
	if h.Callback != nil {
		h.Callback()
	}
}

// scriptActivator adapts a loaded script.Module; since script.Load always
// refuses, this type only exists to satisfy the variant in Build below.
type scriptActivator struct {
	mod script.Module
}

func (s scriptActivator) Matches(map[uint16]struct{}, ievent.Event) bool { return false }
func (s scriptActivator) Fire()                                         {}

// Build constructs one Activator per link.Activators entry, wiring
// callback to cycle the owning link's group.
func Build(configs []config.ActivatorConfig, callback func()) ([]Activator, error) {
	out := make([]Activator, 0, len(configs))
	for i, c := range configs {
		switch c.Type {
		case "hotkey":
			var props config.HotkeyProperties
			if len(c.Properties) > 0 {
				if err := json.Unmarshal(c.Properties, &props); err != nil {
					return nil, fmt.Errorf("activator[%d]: %w", i, err)
				}
			}
			key, err := keycode.Code(props.Hotkey.Key)
			if err != nil {
				return nil, fmt.Errorf("activator[%d]: %w", i, err)
			}
			modifiers := make([]uint16, 0, len(props.Hotkey.Modifiers))
			for _, m := range props.Hotkey.Modifiers {
				mc, err := keycode.Code(m)
				if err != nil {
					return nil, fmt.Errorf("activator[%d]: %w", i, err)
				}
				modifiers = append(modifiers, mc)
			}
			out = append(out, &Hotkey{Key: key, Modifiers: modifiers, Callback: callback})
		case "script":
			mod, err := script.Load(c.Properties)
			if err != nil {
				return nil, fmt.Errorf("activator[%d]: %w", i, err)
			}
			out = append(out, scriptActivator{mod})
		default:
			return nil, fmt.Errorf("activator[%d]: unknown type %q", i, c.Type)
		}
	}
	return out, nil
}
