package transform

import (
	"encoding/json"
	"fmt"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/internal/keycode"
)

// MouseExtras maps each configured side button to a single key code (one
// event in, one event out, same value) and accumulates REL_WHEEL/REL_HWHEEL
// remainders to produce fractional scroll ticks, carrying its own state
// across events (§4.3 step 1). Button chords and multi-key sequences are
// not produced, and REL_X/REL_Y pass through untouched.
type MouseExtras struct {
	sideButtons   map[uint16]uint16 // BTN_* code -> KEY_* code it emits while held
	scrollDivisor int32
	remainderX    int32
	remainderY    int32
}

type mouseExtrasProperties struct {
	SideButtons   map[string]string `json:"side_buttons"`
	ScrollDivisor int32             `json:"scroll_divisor"`
}

func NewMouseExtras(raw json.RawMessage) (*MouseExtras, error) {
	props := mouseExtrasProperties{ScrollDivisor: 1}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &props); err != nil {
			return nil, fmt.Errorf("mouse_extras: %w", err)
		}
	}
	if props.ScrollDivisor <= 0 {
		props.ScrollDivisor = 1
	}
	sideButtons := make(map[uint16]uint16, len(props.SideButtons))
	for btn, key := range props.SideButtons {
		btnCode, err := keycode.Code(btn)
		if err != nil {
			return nil, fmt.Errorf("mouse_extras: %w", err)
		}
		keyCode, err := keycode.Code(key)
		if err != nil {
			return nil, fmt.Errorf("mouse_extras: %w", err)
		}
		sideButtons[btnCode] = keyCode
	}
	return &MouseExtras{sideButtons: sideButtons, scrollDivisor: props.ScrollDivisor}, nil
}

func (m *MouseExtras) Interested(ev ievent.Event) bool {
	if ev.Type == ievent.EvKey {
		_, ok := m.sideButtons[ev.Code]
		return ok
	}
	if ev.Type == ievent.EvRel {
		return ev.Code == ievent.RelWheel || ev.Code == ievent.RelHWheel
	}
	return false
}

func (m *MouseExtras) Apply(ev ievent.Event) ([]ievent.Event, error) {
	switch ev.Type {
	case ievent.EvKey:
		mapped, ok := m.sideButtons[ev.Code]
		if !ok {
			return []ievent.Event{ev}, nil
		}
		return []ievent.Event{{Type: ievent.EvKey, Code: mapped, Value: ev.Value}}, nil

	case ievent.EvRel:
		if m.scrollDivisor == 1 {
			return []ievent.Event{ev}, nil
		}
		var remainder *int32
		if ev.Code == ievent.RelWheel {
			remainder = &m.remainderY
		} else {
			remainder = &m.remainderX
		}
		*remainder += ev.Value
		ticks := *remainder / m.scrollDivisor
		*remainder -= ticks * m.scrollDivisor
		if ticks == 0 {
			return nil, nil
		}
		return []ievent.Event{{Type: ev.Type, Code: ev.Code, Value: ticks}}, nil
	}
	return []ievent.Event{ev}, nil
}
