package evio

import (
	"fmt"
	"os"
	"sync"

	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
)

// HIDGadgetDest translates key events into 8-byte USB HID boot-keyboard
// reports and writes each updated report to a gadget character device
// Unmappable key codes are dropped.
type HIDGadgetDest struct {
	mu       sync.Mutex
	file     *os.File
	log      *hublog.Logger
	modifier byte
	active   []byte // up to 6 active non-modifier usage codes, report bytes 2-7
}

func NewHIDGadgetDest(path string, log *hublog.Logger) (*HIDGadgetDest, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open hid gadget %s: %w", path, err)
	}
	return &HIDGadgetDest{file: f, log: log}, nil
}

func (h *HIDGadgetDest) WriteBatch(batch ievent.Batch) error {
	var lastErr error
	for _, ev := range batch {
		if ev.Type != ievent.EvKey {
			continue
		}
		if err := h.applyKey(ev); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (h *HIDGadgetDest) applyKey(ev ievent.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if bit, ok := hidModifierBit[ev.Code]; ok {
		if ev.Value == ievent.KeyUp {
			h.modifier &^= 1 << bit
		} else if ev.Value != ievent.KeyRepeat {
			h.modifier |= 1 << bit
		}
		return h.writeReport()
	}

	usage, ok := hidUsage[ev.Code]
	if !ok {
		h.log.Debugf("hid_gadget: dropping unmappable key code %d", ev.Code)
		return nil
	}
	if ev.Value == ievent.KeyRepeat {
		return nil
	}
	if ev.Value == ievent.KeyDown {
		h.addActive(usage)
	} else {
		h.removeActive(usage)
	}
	return h.writeReport()
}

func (h *HIDGadgetDest) addActive(usage byte) {
	for _, u := range h.active {
		if u == usage {
			return
		}
	}
	if len(h.active) < 6 {
		h.active = append(h.active, usage)
	}
}

func (h *HIDGadgetDest) removeActive(usage byte) {
	out := h.active[:0]
	for _, u := range h.active {
		if u != usage {
			out = append(out, u)
		}
	}
	h.active = out
}

func (h *HIDGadgetDest) writeReport() error {
	var report [8]byte
	report[0] = h.modifier
	copy(report[2:], h.active)
	if _, err := h.file.Write(report[:]); err != nil {
		return fmt.Errorf("hid_gadget write: %w", err)
	}
	return nil
}

func (h *HIDGadgetDest) Close() error {
	return h.file.Close()
}
