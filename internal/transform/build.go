package transform

import (
	"fmt"

	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/internal/script"
)

// scriptAdapter lets a loaded script.Module satisfy Transform.
type scriptAdapter struct {
	mod script.Module
}

func (s scriptAdapter) Interested(ev ievent.Event) bool {
	codes, ok := s.mod.InputCodes[ev.Type]
	if !ok {
		return false
	}
	for _, c := range codes {
		if c == ev.Code {
			return true
		}
	}
	return false
}

func (s scriptAdapter) Apply(ev ievent.Event) ([]ievent.Event, error) {
	return s.mod.Apply(ev)
}

// Build constructs the ordered Chain described by a source's transform
// configs.
func Build(configs []config.TransformConfig) (Chain, error) {
	chain := make(Chain, 0, len(configs))
	for i, c := range configs {
		switch c.Type {
		case "key_remap":
			t, err := NewKeyRemap(c.Properties)
			if err != nil {
				return nil, fmt.Errorf("transform[%d]: %w", i, err)
			}
			chain = append(chain, t)
		case "mouse_extras":
			t, err := NewMouseExtras(c.Properties)
			if err != nil {
				return nil, fmt.Errorf("transform[%d]: %w", i, err)
			}
			chain = append(chain, t)
		case "script":
			mod, err := script.Load(c.Properties)
			if err != nil {
				return nil, fmt.Errorf("transform[%d]: %w", i, err)
			}
			chain = append(chain, scriptAdapter{mod})
		default:
			return nil, fmt.Errorf("transform[%d]: unknown type %q", i, c.Type)
		}
	}
	return chain, nil
}
