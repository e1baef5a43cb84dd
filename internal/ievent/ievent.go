// Package ievent defines the low-level input event vocabulary shared by the
// evdev decoder, the transform chain, the activator, and the destination
// sinks, keeping those packages free of import cycles on each other.
package ievent

// Event mirrors one struct input_event's type/code/value triple (the
// kernel timestamp is not part of the router's semantics).
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Batch is an ordered sequence of events terminated, in practice, by a
// SYN_REPORT; batches are the unit of atomic delivery downstream.
type Batch []Event

// Event type codes (linux/input-event-codes.h).
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvRel uint16 = 0x02
	EvAbs uint16 = 0x03
	EvMsc uint16 = 0x04
)

// EV_SYN codes.
const (
	SynReport  uint16 = 0
	SynConfig  uint16 = 1
	SynMtReport uint16 = 2
	SynDropped uint16 = 3
)

// Multi-touch protocol B codes.
const (
	AbsMtSlot       uint16 = 0x2f
	AbsMtTrackingID uint16 = 0x39
)

// EV_REL codes used by the mouse "extra features" transform.
const (
	RelX      uint16 = 0x00
	RelY      uint16 = 0x01
	RelWheel  uint16 = 0x08
	RelHWheel uint16 = 0x06
)

// Key value semantics (§4.3 step 3).
const (
	KeyUp      int32 = 0
	KeyDown    int32 = 1
	KeyRepeat  int32 = 2
)

// MTTrackingReleased is the sentinel tracking-id value that lifts a contact.
const MTTrackingReleased int32 = -1

func Sync() Event { return Event{Type: EvSyn, Code: SynReport} }

// IsSoloSyn reports whether a batch contains only the terminating
// SYN_REPORT, which must never be forwarded downstream.
func IsSoloSyn(b Batch) bool {
	return len(b) == 1 && b[0].Type == EvSyn && b[0].Code == SynReport
}
