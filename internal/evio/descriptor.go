package evio

import (
	"os"
	"unsafe"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/pkg/wire"
)

// Descriptor is the immutable capability dump derived from a device at open
// time: name, bus id, supported event-type/event-code map, absolute-axis
// info, auto-repeat parameters, and input-property bits.
type Descriptor struct {
	Name       string
	ID         inputID
	EvBits     map[uint16][]uint16
	AbsInfo    map[uint16]absInfo
	RepValue   map[uint16]int32
	Properties []int
}

// bitSet reads an EVIOCGBIT-style bitmask reply and returns the set codes.
func bitSet(mask []byte, max int) []uint16 {
	var out []uint16
	for code := 0; code <= max; code++ {
		byteIdx := code / 8
		if byteIdx >= len(mask) {
			break
		}
		if mask[byteIdx]&(1<<uint(code%8)) != 0 {
			out = append(out, uint16(code))
		}
	}
	return out
}

func codeMaxFor(evType uint16) int {
	switch evType {
	case ievent.EvKey:
		return keyMax
	case ievent.EvRel:
		return 0x0f
	case ievent.EvAbs:
		return 0x3f
	case ievent.EvMsc:
		return 0x07
	case ievent.EvSyn:
		return 0x0f
	default:
		return 0xff
	}
}

// readDescriptor queries every capability ioctl on an already-open evdev
// file descriptor. Errors querying optional fields (name, rep) are not
// fatal; the descriptor simply omits them.
func readDescriptor(f *os.File) (Descriptor, error) {
	fd := f.Fd()
	desc := Descriptor{
		EvBits:  make(map[uint16][]uint16),
		AbsInfo: make(map[uint16]absInfo),
	}

	var name [256]byte
	if ioctl(fd, eviocgname(uintptr(len(name))), uintptr(unsafe.Pointer(&name[0]))) == nil {
		n := 0
		for n < len(name) && name[n] != 0 {
			n++
		}
		desc.Name = string(name[:n])
	}

	var id inputID
	if err := ioctl(fd, eviocgid, uintptr(unsafe.Pointer(&id))); err != nil {
		return Descriptor{}, err
	}
	desc.ID = id

	var prop [32]byte
	if ioctl(fd, eviocgprop(uintptr(len(prop))), uintptr(unsafe.Pointer(&prop[0]))) == nil {
		for _, code := range bitSet(prop[:], 0xff) {
			desc.Properties = append(desc.Properties, int(code))
		}
	}

	var evMask [(evMax + 8) / 8]byte
	if err := ioctl(fd, eviocgbit(0, uintptr(len(evMask))), uintptr(unsafe.Pointer(&evMask[0]))); err != nil {
		return Descriptor{}, err
	}
	for _, evType := range bitSet(evMask[:], evMax) {
		if evType == ievent.EvSyn {
			continue
		}
		size := (codeMaxFor(evType) + 8) / 8
		codeMask := make([]byte, size)
		if ioctl(fd, eviocgbit(byte(evType), uintptr(size)), uintptr(unsafe.Pointer(&codeMask[0]))) != nil {
			continue
		}
		codes := bitSet(codeMask, codeMaxFor(evType))
		if len(codes) == 0 {
			continue
		}
		desc.EvBits[evType] = codes
		if evType == ievent.EvAbs {
			for _, code := range codes {
				var ai absInfo
				if ioctl(fd, eviocgabs(byte(code)), uintptr(unsafe.Pointer(&ai))) == nil {
					desc.AbsInfo[code] = ai
				}
			}
		}
	}

	var rep [2]uint32
	if ioctl(fd, eviocgrep, uintptr(unsafe.Pointer(&rep[0]))) == nil {
		desc.RepValue = map[uint16]int32{
			0: int32(rep[0]),
			1: int32(rep[1]),
		}
	}

	return desc, nil
}

// ToWire converts a Descriptor to the subprocess/IPC wire representation
// for the subprocess destination wire format.
func (d Descriptor) ToWire() wire.Descriptor {
	w := wire.Descriptor{
		Name: d.Name,
		ID: wire.ID{
			Bustype: d.ID.Bustype,
			Vendor:  d.ID.Vendor,
			Product: d.ID.Product,
			Version: d.ID.Version,
		},
		EvBits:     make(map[int][]int, len(d.EvBits)),
		AbsInfo:    make(map[int]wire.AbsInfo, len(d.AbsInfo)),
		RepValue:   make(map[int]int, len(d.RepValue)),
		Properties: append([]int(nil), d.Properties...),
	}
	for evType, codes := range d.EvBits {
		out := make([]int, len(codes))
		for i, c := range codes {
			out[i] = int(c)
		}
		w.EvBits[int(evType)] = out
	}
	for code, ai := range d.AbsInfo {
		w.AbsInfo[int(code)] = wire.AbsInfo{
			Minimum: ai.Minimum, Maximum: ai.Maximum, Fuzz: ai.Fuzz,
			Flat: ai.Flat, Resolution: ai.Resolution, Value: ai.Value,
		}
	}
	for code, v := range d.RepValue {
		w.RepValue[int(code)] = int(v)
	}
	return w
}

// DescriptorFromWire reconstructs a Descriptor from its wire representation,
// the inverse of ToWire, for the IPC/subprocess-source path.
func DescriptorFromWire(w wire.Descriptor) Descriptor {
	d := Descriptor{
		Name: w.Name,
		ID: inputID{
			Bustype: w.ID.Bustype, Vendor: w.ID.Vendor,
			Product: w.ID.Product, Version: w.ID.Version,
		},
		EvBits:     make(map[uint16][]uint16, len(w.EvBits)),
		AbsInfo:    make(map[uint16]absInfo, len(w.AbsInfo)),
		RepValue:   make(map[uint16]int32, len(w.RepValue)),
		Properties: append([]int(nil), w.Properties...),
	}
	for evType, codes := range w.EvBits {
		out := make([]uint16, len(codes))
		for i, c := range codes {
			out[i] = uint16(c)
		}
		d.EvBits[uint16(evType)] = out
	}
	for code, ai := range w.AbsInfo {
		d.AbsInfo[uint16(code)] = absInfo{
			Minimum: ai.Minimum, Maximum: ai.Maximum, Fuzz: ai.Fuzz,
			Flat: ai.Flat, Resolution: ai.Resolution, Value: ai.Value,
		}
	}
	for code, v := range w.RepValue {
		d.RepValue[uint16(code)] = int32(v)
	}
	return d
}
