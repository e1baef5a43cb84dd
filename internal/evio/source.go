package evio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/evdev-transformer/evdev-transformer/internal/activator"
	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/internal/transform"
)

// errDropSync is returned by the evdev Reader when the kernel reports lost
// events (SYN_DROPPED); the caller must resynchronize (§4.3
// "Re-synchronization"). A socket Reader never returns it.
var errDropSync = errors.New("evio: stream reported dropped events")

// Reader is the narrow interface SourceDevice needs from a live stream: an
// evdev device node or an IPC unix-socket connection.
type Reader interface {
	// ReadEvent blocks for the next event. It returns io.EOF at stream end
	// and errDropSync when the underlying stream reports an overrun.
	ReadEvent() (ievent.Event, error)
	// Resync returns synthetic events representing the device's current
	// state, to be replayed through the pipeline after a drop.
	Resync() ([]ievent.Event, error)
	Grab() error
	Ungrab() error
	Close() error
}

// SourceDevice is the per-device pipeline described in §3/§4.3: it owns
// grab state, the pressed-key set, and the MT-slot table, and turns a raw
// event stream into synchronized, hygienic event batches.
type SourceDevice struct {
	Identifier config.Identifier
	Descriptor Descriptor

	reader Reader
	log    *hublog.Logger

	mu          sync.Mutex // guards transforms/activators/pressedKeys/mt state
	transforms  transform.Chain
	activators  []activator.Activator
	pressedKeys map[uint16]struct{}
	mtSlots     map[int32]int32
	currentSlot int32
	haveSlot    bool

	releaseRequested atomic.Bool
	running          atomic.Bool // true for the lifetime of one events() invocation

	out  chan ievent.Batch
	done chan struct{} // closed when run() has fully returned (ungrab, close)
}

// New wraps a Reader with the pipeline state machine. desc is the
// capability descriptor read at open time (immutable for the device's
// life).
func New(id config.Identifier, desc Descriptor, reader Reader, log *hublog.Logger) *SourceDevice {
	return &SourceDevice{
		Identifier:  id,
		Descriptor:  desc,
		reader:      reader,
		log:         log,
		pressedKeys: make(map[uint16]struct{}),
		mtSlots:     make(map[int32]int32),
	}
}

// SetTransforms installs a new transform chain, effective no later than the
// next event.
func (d *SourceDevice) SetTransforms(chain transform.Chain) {
	d.mu.Lock()
	d.transforms = chain
	d.mu.Unlock()
}

// SetActivators installs a new activator list, effective no later than the
// next event.
func (d *SourceDevice) SetActivators(list []activator.Activator) {
	d.mu.Lock()
	d.activators = list
	d.mu.Unlock()
}

// HasPressedKeys reports whether every given key code is currently held.
func (d *SourceDevice) HasPressedKeys(keys []uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		if _, ok := d.pressedKeys[k]; !ok {
			return false
		}
	}
	return true
}

// Release requests that the event loop drain and exit.
func (d *SourceDevice) Release() {
	d.releaseRequested.Store(true)
}

// Done returns the channel for the current (or most recently started)
// events() invocation, closed once run() has fully returned: the release
// epilogue has been emitted and the reader has been ungrabbed and closed.
// A caller that released this device must receive from Done() before
// rebinding it to a different destination (§4.5 "Handover property"),
// since Events() refuses re-entry until run() observes that shutdown.
// Returns nil if Events() has never been called.
func (d *SourceDevice) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Events starts (if not already started) the event loop and returns the
// channel of synchronized batches. Only the first call per SourceDevice
// does work; later calls while a loop is running would violate the
// single-decoder invariant and are refused by returning nil.
func (d *SourceDevice) Events() <-chan ievent.Batch {
	if !d.running.CompareAndSwap(false, true) {
		return nil
	}
	d.releaseRequested.Store(false)
	d.out = make(chan ievent.Batch, 16)
	d.mu.Lock()
	d.done = make(chan struct{})
	d.mu.Unlock()
	go d.run()
	return d.out
}

func (d *SourceDevice) run() {
	done := d.done
	defer close(done)
	defer d.running.Store(false)
	defer close(d.out)

	if err := d.reader.Grab(); err != nil {
		d.log.Warnf("grab %s: %v", d.Descriptor.Name, err)
	}

	d.prologue()

	var buf ievent.Batch
	for {
		if d.releaseRequested.Load() {
			break
		}
		ev, err := d.reader.ReadEvent()
		if err != nil {
			if errors.Is(err, errDropSync) {
				synthetic, rerr := d.reader.Resync()
				if rerr != nil {
					d.log.Warnf("resync %s: %v", d.Descriptor.Name, rerr)
					continue
				}
				for _, sev := range synthetic {
					d.feed(sev, &buf)
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				d.log.Warnf("read %s: %v", d.Descriptor.Name, err)
			}
			break
		}
		d.feed(ev, &buf)
	}

	d.epilogue(&buf)
	d.reader.Ungrab()
	d.reader.Close()
}

// prologue restores any known MT contacts before the first live read, so a
// re-attached device's destination regains continuity (§4.3 "Attach-time
// prologue").
func (d *SourceDevice) prologue() {
	d.mu.Lock()
	slots := make(map[int32]int32, len(d.mtSlots))
	for s, t := range d.mtSlots {
		slots[s] = t
	}
	d.mu.Unlock()

	for slot, tracking := range slots {
		batch := ievent.Batch{
			{Type: ievent.EvAbs, Code: ievent.AbsMtSlot, Value: slot},
			{Type: ievent.EvAbs, Code: ievent.AbsMtTrackingID, Value: tracking},
			ievent.Sync(),
		}
		d.out <- batch
	}
}

// epilogue emits the release cleanup batches (§4.3 "Release epilogue"):
// key-ups for every pressed key, MT-lift per known slot, and (if the
// device supports MT at all) a final catch-all lift.
func (d *SourceDevice) epilogue(buf *ievent.Batch) {
	if len(*buf) > 0 && !ievent.IsSoloSyn(*buf) {
		d.out <- *buf
	}
	*buf = nil

	d.mu.Lock()
	pressed := make([]uint16, 0, len(d.pressedKeys))
	for k := range d.pressedKeys {
		pressed = append(pressed, k)
	}
	slots := make([]int32, 0, len(d.mtSlots))
	for s := range d.mtSlots {
		slots = append(slots, s)
	}
	supportsMT := false
	for _, c := range d.Descriptor.EvBits[ievent.EvAbs] {
		if c == ievent.AbsMtTrackingID {
			supportsMT = true
		}
	}
	d.pressedKeys = make(map[uint16]struct{})
	d.mu.Unlock()

	for _, key := range pressed {
		d.out <- ievent.Batch{{Type: ievent.EvKey, Code: key, Value: ievent.KeyUp}, ievent.Sync()}
	}
	for _, slot := range slots {
		d.out <- ievent.Batch{
			{Type: ievent.EvAbs, Code: ievent.AbsMtSlot, Value: slot},
			{Type: ievent.EvAbs, Code: ievent.AbsMtTrackingID, Value: ievent.MTTrackingReleased},
			ievent.Sync(),
		}
	}
	if supportsMT {
		d.out <- ievent.Batch{
			{Type: ievent.EvAbs, Code: ievent.AbsMtTrackingID, Value: ievent.MTTrackingReleased},
			ievent.Sync(),
		}
	}
}

// feed runs one raw event through the pipeline: transform chain, activator
// check, state update, batch assembly (§4.3 steps 1-4).
func (d *SourceDevice) feed(ev ievent.Event, buf *ievent.Batch) {
	d.mu.Lock()
	chain := d.transforms
	activators := d.activators
	d.mu.Unlock()

	var transformed []ievent.Event
	if ev.Type == ievent.EvSyn {
		transformed = []ievent.Event{ev}
	} else {
		transformed = chain.Run(ev, func(err error) {
			d.log.Warnf("transform on %s: %v", d.Descriptor.Name, err)
		})
	}

	for _, out := range transformed {
		d.mu.Lock()
		pressedSnapshot := d.pressedKeys
		d.mu.Unlock()

		matched := false
		for _, a := range activators {
			if a.Matches(pressedSnapshot, out) {
				a.Fire()
				*buf = nil
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		d.updateState(out)

		if out.Type == ievent.EvKey && out.Value == ievent.KeyRepeat {
			continue // auto-repeat is never forwarded
		}
		*buf = append(*buf, out)

		if out.Type == ievent.EvSyn && out.Code == ievent.SynReport {
			if !ievent.IsSoloSyn(*buf) {
				d.out <- append(ievent.Batch(nil), *buf...)
			}
			*buf = nil
			d.mu.Lock()
			d.haveSlot = false
			d.mu.Unlock()
		}
	}
}

// updateState applies §4.3 step 3.
func (d *SourceDevice) updateState(ev ievent.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Type {
	case ievent.EvKey:
		switch ev.Value {
		case ievent.KeyUp:
			delete(d.pressedKeys, ev.Code)
		case ievent.KeyDown:
			d.pressedKeys[ev.Code] = struct{}{}
		case ievent.KeyRepeat:
			// discarded: never affects pressed_keys
		}
	case ievent.EvAbs:
		switch ev.Code {
		case ievent.AbsMtSlot:
			d.currentSlot = ev.Value
			d.haveSlot = true
		case ievent.AbsMtTrackingID:
			if !d.haveSlot {
				for slot := range d.mtSlots {
					d.currentSlot = slot
					d.haveSlot = true
					break
				}
			}
			if ev.Value == ievent.MTTrackingReleased {
				delete(d.mtSlots, d.currentSlot)
			} else {
				d.mtSlots[d.currentSlot] = ev.Value
			}
		}
	}
}
