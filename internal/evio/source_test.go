package evio

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/evdev-transformer/evdev-transformer/internal/activator"
	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/internal/keycode"
	"github.com/evdev-transformer/evdev-transformer/internal/transform"
)

// fakeReader is a Reader backed by a channel the test feeds by hand,
// standing in for a real evdev device node or IPC socket. A SourceDevice
// may reuse the same Reader across a handover (the hub binds the same
// *SourceDevice, and thus the same underlying Reader, to a new
// destination), so Close must tolerate more than one call the way
// os.File.Close does rather than panicking on a second close of closed.
type fakeReader struct {
	events  chan ievent.Event
	closed  chan struct{}
	closeMu sync.Mutex
	isShut  bool
	grabs   int
	ungrabs int
}

func newFakeReader() *fakeReader {
	return &fakeReader{events: make(chan ievent.Event, 64), closed: make(chan struct{})}
}

func (r *fakeReader) feed(evs ...ievent.Event) {
	for _, ev := range evs {
		r.events <- ev
	}
}

func (r *fakeReader) ReadEvent() (ievent.Event, error) {
	select {
	case ev, ok := <-r.events:
		if !ok {
			return ievent.Event{}, io.EOF
		}
		return ev, nil
	case <-r.closed:
		return ievent.Event{}, io.EOF
	}
}

func (r *fakeReader) Resync() ([]ievent.Event, error) { return nil, nil }
func (r *fakeReader) Grab() error                     { r.grabs++; return nil }
func (r *fakeReader) Ungrab() error                   { r.ungrabs++; return nil }

func (r *fakeReader) Close() error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.isShut {
		return nil
	}
	r.isShut = true
	close(r.closed)
	return nil
}

func testLogger() *hublog.Logger {
	return hublog.New("test", hublog.LevelError)
}

func keyCode(t *testing.T, name string) uint16 {
	t.Helper()
	c, err := keycode.Code(name)
	if err != nil {
		t.Fatalf("resolve %s: %v", name, err)
	}
	return c
}

func plainKeyboardDescriptor() Descriptor {
	return Descriptor{
		Name:   "Test Keyboard",
		EvBits: map[uint16][]uint16{ievent.EvKey: {0}, ievent.EvSyn: {ievent.SynReport}},
	}
}

func touchpadDescriptor() Descriptor {
	return Descriptor{
		Name: "Test Touchpad",
		EvBits: map[uint16][]uint16{
			ievent.EvAbs: {ievent.AbsMtSlot, ievent.AbsMtTrackingID},
			ievent.EvSyn: {ievent.SynReport},
		},
	}
}

// recvBatch waits (bounded) for the next batch on ch, failing the test on
// timeout so a stuck pipeline doesn't hang the suite.
func recvBatch(t *testing.T, ch <-chan ievent.Batch) ievent.Batch {
	t.Helper()
	select {
	case b, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before expected batch")
		}
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	return nil
}

func drainNoBatch(t *testing.T, ch <-chan ievent.Batch) {
	t.Helper()
	select {
	case b, ok := <-ch:
		if ok {
			t.Fatalf("expected no batch, got %+v", b)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// release requests shutdown and feeds one inert solo-SYN so the fake
// reader's blocked ReadEvent call returns: the run loop only re-checks the
// release flag between reads, so without this nudge the loop (and any
// epilogue batch or Done() close depending on it) would never happen.
func release(dev *SourceDevice, reader *fakeReader) {
	dev.Release()
	reader.feed(ievent.Sync())
}

// S1: basic keyboard passthrough.
func TestSourceDeviceBasicPassthrough(t *testing.T) {
	reader := newFakeReader()
	dev := New(config.Identifier{}, plainKeyboardDescriptor(), reader, testLogger())

	ch := dev.Events()
	if ch == nil {
		t.Fatal("Events returned nil on first call")
	}

	keyA := keyCode(t, "KEY_A")
	reader.feed(
		ievent.Event{Type: ievent.EvKey, Code: keyA, Value: ievent.KeyDown},
		ievent.Sync(),
		ievent.Event{Type: ievent.EvKey, Code: keyA, Value: ievent.KeyUp},
		ievent.Sync(),
	)

	down := recvBatch(t, ch)
	wantDown := ievent.Batch{{Type: ievent.EvKey, Code: keyA, Value: ievent.KeyDown}, ievent.Sync()}
	if !batchEqual(down, wantDown) {
		t.Fatalf("down batch = %+v, want %+v", down, wantDown)
	}

	up := recvBatch(t, ch)
	wantUp := ievent.Batch{{Type: ievent.EvKey, Code: keyA, Value: ievent.KeyUp}, ievent.Sync()}
	if !batchEqual(up, wantUp) {
		t.Fatalf("up batch = %+v, want %+v", up, wantUp)
	}

	release(dev, reader)
	<-dev.Done()
}

// S2: auto-repeat suppression — the repeat-only frame never reaches the
// destination as its own batch.
func TestSourceDeviceSuppressesAutoRepeat(t *testing.T) {
	reader := newFakeReader()
	dev := New(config.Identifier{}, plainKeyboardDescriptor(), reader, testLogger())
	ch := dev.Events()

	keyA := keyCode(t, "KEY_A")
	reader.feed(
		ievent.Event{Type: ievent.EvKey, Code: keyA, Value: ievent.KeyDown},
		ievent.Sync(),
		ievent.Event{Type: ievent.EvKey, Code: keyA, Value: ievent.KeyRepeat},
		ievent.Sync(),
		ievent.Event{Type: ievent.EvKey, Code: keyA, Value: ievent.KeyUp},
		ievent.Sync(),
	)

	down := recvBatch(t, ch)
	if down[0].Value != ievent.KeyDown {
		t.Fatalf("expected the first batch to be the key-down, got %+v", down)
	}
	up := recvBatch(t, ch)
	if up[0].Value != ievent.KeyUp {
		t.Fatalf("expected the second batch to be the key-up (repeat frame suppressed), got %+v", up)
	}

	release(dev, reader)
	<-dev.Done()
}

// S5: key remap — pressed_keys tracks the post-transform code, and release
// emits the remapped key's up, not the physical one.
func TestSourceDeviceKeyRemapAffectsPressedStateAndEpilogue(t *testing.T) {
	reader := newFakeReader()
	dev := New(config.Identifier{}, plainKeyboardDescriptor(), reader, testLogger())

	remap, err := transform.NewKeyRemap(json.RawMessage(`{"map":{"KEY_CAPSLOCK":"KEY_ESC"}}`))
	if err != nil {
		t.Fatalf("NewKeyRemap: %v", err)
	}
	dev.SetTransforms(transform.Chain{remap})

	ch := dev.Events()

	capsLock := keyCode(t, "KEY_CAPSLOCK")
	esc := keyCode(t, "KEY_ESC")
	reader.feed(
		ievent.Event{Type: ievent.EvKey, Code: capsLock, Value: ievent.KeyDown},
		ievent.Sync(),
	)

	down := recvBatch(t, ch)
	wantDown := ievent.Batch{{Type: ievent.EvKey, Code: esc, Value: ievent.KeyDown}, ievent.Sync()}
	if !batchEqual(down, wantDown) {
		t.Fatalf("down batch = %+v, want %+v (post-transform code)", down, wantDown)
	}

	if !dev.HasPressedKeys([]uint16{esc}) {
		t.Fatal("expected pressed_keys to contain the post-transform ESC code")
	}
	if dev.HasPressedKeys([]uint16{capsLock}) {
		t.Fatal("pressed_keys should not contain the pre-transform CAPSLOCK code")
	}

	release(dev, reader)
	epilogue := recvBatch(t, ch)
	wantEpilogue := ievent.Batch{{Type: ievent.EvKey, Code: esc, Value: ievent.KeyUp}, ievent.Sync()}
	if !batchEqual(epilogue, wantEpilogue) {
		t.Fatalf("release epilogue = %+v, want a release of the remapped ESC code %+v", epilogue, wantEpilogue)
	}
	<-dev.Done()
}

// S3-style: a matching activator absorbs its triggering key-down so it
// never leaks to the destination as a batch.
func TestSourceDeviceActivatorAbsorbsTriggerEvent(t *testing.T) {
	reader := newFakeReader()
	dev := New(config.Identifier{}, plainKeyboardDescriptor(), reader, testLogger())

	fired := make(chan struct{}, 1)
	ctrl := keyCode(t, "KEY_LEFTCTRL")
	f1 := keyCode(t, "KEY_F1")
	dev.SetActivators([]activator.Activator{
		&activator.Hotkey{Key: f1, Modifiers: []uint16{ctrl}, Callback: func() { fired <- struct{}{} }},
	})

	ch := dev.Events()

	reader.feed(
		ievent.Event{Type: ievent.EvKey, Code: ctrl, Value: ievent.KeyDown},
		ievent.Sync(),
	)
	ctrlDown := recvBatch(t, ch)
	if ctrlDown[0].Code != ctrl {
		t.Fatalf("expected ctrl down batch, got %+v", ctrlDown)
	}

	reader.feed(
		ievent.Event{Type: ievent.EvKey, Code: f1, Value: ievent.KeyDown},
		ievent.Sync(),
	)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("activator never fired")
	}
	drainNoBatch(t, ch) // the F1 down + its SYN must not reach the destination

	release(dev, reader)
	<-dev.Done()
}

// S4: multi-touch handover — release lifts the known contact, and a
// subsequent Events() invocation (simulating rebind to a new destination)
// restores it via the attach-time prologue before forwarding new motion.
func TestSourceDeviceMultiTouchHandoverAcrossRelease(t *testing.T) {
	reader := newFakeReader()
	dev := New(config.Identifier{}, touchpadDescriptor(), reader, testLogger())

	ch1 := dev.Events()
	if ch1 == nil {
		t.Fatal("Events returned nil on first call")
	}

	reader.feed(
		ievent.Event{Type: ievent.EvAbs, Code: ievent.AbsMtSlot, Value: 0},
		ievent.Event{Type: ievent.EvAbs, Code: ievent.AbsMtTrackingID, Value: 17},
		ievent.Sync(),
	)
	touch := recvBatch(t, ch1)
	if len(touch) != 3 || touch[1].Code != ievent.AbsMtTrackingID || touch[1].Value != 17 {
		t.Fatalf("unexpected touch-down batch: %+v", touch)
	}

	done := dev.Done()
	release(dev, reader)

	lift := recvBatch(t, ch1)
	wantLift := ievent.Batch{
		{Type: ievent.EvAbs, Code: ievent.AbsMtSlot, Value: 0},
		{Type: ievent.EvAbs, Code: ievent.AbsMtTrackingID, Value: ievent.MTTrackingReleased},
		ievent.Sync(),
	}
	if !batchEqual(lift, wantLift) {
		t.Fatalf("release epilogue MT lift = %+v, want %+v", lift, wantLift)
	}
	catchAll := recvBatch(t, ch1)
	wantCatchAll := ievent.Batch{
		{Type: ievent.EvAbs, Code: ievent.AbsMtTrackingID, Value: ievent.MTTrackingReleased},
		ievent.Sync(),
	}
	if !batchEqual(catchAll, wantCatchAll) {
		t.Fatalf("release epilogue catch-all lift = %+v, want %+v", catchAll, wantCatchAll)
	}

	<-done // the decode goroutine must fully finish before Events() may be called again

	ch2 := dev.Events()
	if ch2 == nil {
		t.Fatal("Events refused re-entry after Done() fired — handover would hang forever")
	}

	prologue := recvBatch(t, ch2)
	wantPrologue := ievent.Batch{
		{Type: ievent.EvAbs, Code: ievent.AbsMtSlot, Value: 0},
		{Type: ievent.EvAbs, Code: ievent.AbsMtTrackingID, Value: 17},
		ievent.Sync(),
	}
	if !batchEqual(prologue, wantPrologue) {
		t.Fatalf("attach-time prologue = %+v, want restored contact %+v", prologue, wantPrologue)
	}

	release(dev, reader)
	<-dev.Done()
}

func batchEqual(a, b ievent.Batch) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
