package evio

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
)

// EvdevReader reads raw kernel input events off an opened /dev/input/eventN
// node, grounded on the johan-bolmsjo-golang-evdev reference's binary.Read
// loop and ioctl-based EVIOCGRAB/EVIOCGKEY queries -- adapted here to avoid
// cgo and to plug into the generic Reader contract SourceDevice expects.
type EvdevReader struct {
	file *os.File

	inDrop bool
}

// OpenEvdev opens devnode non-blocking-free (the router wants a blocking
// read per device, one goroutine per SourceDevice) and reads its
// descriptor.
func OpenEvdev(devnode string) (*EvdevReader, Descriptor, error) {
	f, err := os.OpenFile(devnode, os.O_RDWR, 0)
	if err != nil {
		return nil, Descriptor{}, fmt.Errorf("open %s: %w", devnode, err)
	}
	desc, err := readDescriptor(f)
	if err != nil {
		f.Close()
		return nil, Descriptor{}, fmt.Errorf("read descriptor %s: %w", devnode, err)
	}
	return &EvdevReader{file: f}, desc, nil
}

func (r *EvdevReader) ReadEvent() (ievent.Event, error) {
	var raw rawEvent
	buf := (*[rawEventSize]byte)(unsafe.Pointer(&raw))[:]
	if _, err := readFull(r.file, buf); err != nil {
		return ievent.Event{}, err
	}
	if raw.Type == ievent.EvSyn && raw.Code == ievent.SynDropped {
		return ievent.Event{}, errDropSync
	}
	return ievent.Event{Type: raw.Type, Code: raw.Code, Value: raw.Value}, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Resync rebuilds the set of currently-held keys from EVIOCGKEY after a
// dropped-event notification, synthesizing key-down events for each held
// key followed by a SYN_REPORT. MT contact state is not resynced; a
// follow-up live ABS_MT_SLOT frame will re-establish it, which is an
// accepted simplification of the kernel's full resync contract.
func (r *EvdevReader) Resync() ([]ievent.Event, error) {
	var mask [(keyMax + 8) / 8]byte
	if err := ioctl(r.file.Fd(), eviocgkey(uintptr(len(mask))), uintptr(unsafe.Pointer(&mask[0]))); err != nil {
		return nil, err
	}
	codes := bitSet(mask[:], keyMax)
	events := make([]ievent.Event, 0, len(codes)+1)
	for _, code := range codes {
		events = append(events, ievent.Event{Type: ievent.EvKey, Code: code, Value: ievent.KeyDown})
	}
	events = append(events, ievent.Sync())
	return events, nil
}

func (r *EvdevReader) Grab() error {
	return ioctl(r.file.Fd(), eviocgrab, 1)
}

func (r *EvdevReader) Ungrab() error {
	return ioctl(r.file.Fd(), eviocgrab, 0)
}

func (r *EvdevReader) Close() error {
	return r.file.Close()
}
