package transform

import (
	"encoding/json"
	"fmt"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/internal/keycode"
)

// KeyRemap rewrites EV_KEY codes one-for-one. It is stateless.
type KeyRemap struct {
	mapping map[uint16]uint16
}

type keyRemapProperties struct {
	Map map[string]string `json:"map"`
}

// NewKeyRemap builds a KeyRemap from a transform config's {"map": {"KEY_X":
// "KEY_Y", ...}} properties.
func NewKeyRemap(raw json.RawMessage) (*KeyRemap, error) {
	var props keyRemapProperties
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &props); err != nil {
			return nil, fmt.Errorf("key_remap: %w", err)
		}
	}
	mapping := make(map[uint16]uint16, len(props.Map))
	for from, to := range props.Map {
		fromCode, err := keycode.Code(from)
		if err != nil {
			return nil, fmt.Errorf("key_remap: %w", err)
		}
		toCode, err := keycode.Code(to)
		if err != nil {
			return nil, fmt.Errorf("key_remap: %w", err)
		}
		mapping[fromCode] = toCode
	}
	return &KeyRemap{mapping: mapping}, nil
}

func (k *KeyRemap) Interested(ev ievent.Event) bool {
	if ev.Type != ievent.EvKey {
		return false
	}
	_, ok := k.mapping[ev.Code]
	return ok
}

func (k *KeyRemap) Apply(ev ievent.Event) ([]ievent.Event, error) {
	return []ievent.Event{{Type: ievent.EvKey, Code: k.mapping[ev.Code], Value: ev.Value}}, nil
}
