package transform

import (
	"encoding/json"
	"testing"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
)

func TestMouseExtrasRemapsSideButton(t *testing.T) {
	m, err := NewMouseExtras(json.RawMessage(`{"side_buttons":{"BTN_SIDE":"KEY_BACK"}}`))
	if err != nil {
		t.Fatalf("NewMouseExtras: %v", err)
	}
	ev := ievent.Event{Type: ievent.EvKey, Code: code(t, "BTN_SIDE"), Value: ievent.KeyDown}
	if !m.Interested(ev) {
		t.Fatal("expected interest in a configured side button")
	}
	out, err := m.Apply(ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 || out[0].Type != ievent.EvKey {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestMouseExtrasDivisorAccumulatesRemainder(t *testing.T) {
	m, err := NewMouseExtras(json.RawMessage(`{"scroll_divisor":3}`))
	if err != nil {
		t.Fatalf("NewMouseExtras: %v", err)
	}
	ev := func(v int32) ievent.Event { return ievent.Event{Type: ievent.EvRel, Code: ievent.RelWheel, Value: v} }

	out, _ := m.Apply(ev(1))
	if out != nil {
		t.Fatalf("expected no tick yet, got %+v", out)
	}
	out, _ = m.Apply(ev(1))
	if out != nil {
		t.Fatalf("expected no tick yet, got %+v", out)
	}
	out, err = m.Apply(ev(1))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 || out[0].Value != 1 {
		t.Fatalf("expected a single accumulated tick, got %+v", out)
	}
}

func TestMouseExtrasPassesThroughWithoutDivisor(t *testing.T) {
	m, err := NewMouseExtras(nil)
	if err != nil {
		t.Fatalf("NewMouseExtras: %v", err)
	}
	ev := ievent.Event{Type: ievent.EvRel, Code: ievent.RelWheel, Value: 5}
	out, err := m.Apply(ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out) != 1 || out[0].Value != 5 {
		t.Fatalf("expected passthrough, got %+v", out)
	}
}
