package evio

import (
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
)

// UinputDest is the uinput destination variant: a kernel virtual device
// whose capability set mirrors the bound source's Descriptor, generalized
// from a fixed keyboard/mouse bit set to whatever event types and codes the
// source descriptor advertises.
type UinputDest struct {
	file *os.File
}

const defaultUinputPath = "/dev/uinput"

// NewUinputDest creates and registers a virtual device mirroring desc, with
// name suffixed "(Virtual)" per the construction contract.
func NewUinputDest(desc Descriptor) (*UinputDest, error) {
	f, err := os.OpenFile(defaultUinputPath, os.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", defaultUinputPath, err)
	}
	dev := &UinputDest{file: f}

	if err := dev.register(uiSetEvBit, uintptr(ievent.EvSyn)); err != nil {
		dev.file.Close()
		return nil, err
	}
	for evType, codes := range desc.EvBits {
		if evType == ievent.EvSyn {
			continue
		}
		if err := dev.register(uiSetEvBit, uintptr(evType)); err != nil {
			dev.file.Close()
			return nil, err
		}
		bitIoctl, ok := map[uint16]uintptr{
			ievent.EvKey: uiSetKeyBit,
			ievent.EvRel: uiSetRelBit,
			ievent.EvAbs: uiSetAbsBit,
		}[evType]
		if !ok {
			continue
		}
		for _, code := range codes {
			if err := dev.register(bitIoctl, uintptr(code)); err != nil {
				dev.file.Close()
				return nil, err
			}
		}
	}
	for _, prop := range desc.Properties {
		dev.register(uiSetPropBit, uintptr(prop))
	}

	if err := dev.setup(desc); err != nil {
		dev.file.Close()
		return nil, err
	}
	for code, ai := range desc.AbsInfo {
		if err := dev.setupAbs(code, ai); err != nil {
			dev.file.Close()
			return nil, err
		}
	}
	if err := dev.create(); err != nil {
		dev.file.Close()
		return nil, err
	}
	if err := dev.setRepeat(desc.RepValue); err != nil {
		dev.file.Close()
		return nil, err
	}
	return dev, nil
}

func (d *UinputDest) register(cmd uintptr, arg uintptr) error {
	if err := ioctl(d.file.Fd(), cmd, arg); err != nil {
		return fmt.Errorf("register uinput bit: %w", err)
	}
	return nil
}

func toUinputName(name string) ([uiMaxNameSize]byte, error) {
	var out [uiMaxNameSize]byte
	if name == "" {
		return out, fmt.Errorf("uinput device name may not be empty")
	}
	if len(name) >= uiMaxNameSize {
		name = name[:uiMaxNameSize-1]
	}
	copy(out[:], name)
	return out, nil
}

func (d *UinputDest) setup(desc Descriptor) error {
	name, err := toUinputName(desc.Name + " (Virtual)")
	if err != nil {
		return err
	}
	setup := uinputSetup{ID: desc.ID, Name: name}
	if err := ioctl(d.file.Fd(), uiDevSetup, uintptr(unsafe.Pointer(&setup))); err != nil {
		return fmt.Errorf("ui_dev_setup: %w", err)
	}
	return nil
}

func (d *UinputDest) setupAbs(code uint16, ai absInfo) error {
	s := absSetup{Code: code, Absinfo: ai}
	if err := ioctl(d.file.Fd(), uiAbsSetup, uintptr(unsafe.Pointer(&s))); err != nil {
		return fmt.Errorf("ui_abs_setup code %d: %w", code, err)
	}
	return nil
}

// setRepeat applies the source's autorepeat delay/period (desc.RepValue,
// keyed 0=REP_DELAY, 1=REP_PERIOD per EVIOCGREP) onto the created uinput
// device via EVIOCSREP, completing the construction contract's "same
// auto-repeat parameters" requirement (§4.4). A source with no queried
// repeat values (RepValue empty) leaves the kernel default in place.
func (d *UinputDest) setRepeat(rep map[uint16]int32) error {
	if len(rep) == 0 {
		return nil
	}
	var buf [2]int32
	buf[0] = rep[0]
	buf[1] = rep[1]
	if err := ioctl(d.file.Fd(), eviocsrep, uintptr(unsafe.Pointer(&buf[0]))); err != nil {
		return fmt.Errorf("eviocsrep: %w", err)
	}
	return nil
}

func (d *UinputDest) create() error {
	if err := ioctl(d.file.Fd(), uiDevCreate, 0); err != nil {
		return fmt.Errorf("ui_dev_create: %w", err)
	}
	// Bounded settling delay: wait for the OS to finish device registration
	// before the first write, as the teacher's uinputDevice.create does.
	time.Sleep(200 * time.Millisecond)
	return nil
}

// WriteBatch emits every event in the batch as a raw input_event write.
func (d *UinputDest) WriteBatch(batch ievent.Batch) error {
	for _, ev := range batch {
		raw := rawEvent{Type: ev.Type, Code: ev.Code, Value: ev.Value}
		if _, err := d.file.Write(raw.bytes()); err != nil {
			return fmt.Errorf("uinput write: %w", err)
		}
	}
	return nil
}

func (d *UinputDest) Close() error {
	ioctl(d.file.Fd(), uiDevDestroy, 0)
	return d.file.Close()
}
