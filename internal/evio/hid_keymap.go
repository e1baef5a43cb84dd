package evio

// hidUsage maps a subset of linux/input-event-codes.h KEY_* codes to USB
// HID boot-keyboard usage IDs (HID Usage Tables 1.12), the inverse of
// the table the kernel's hid-input quirk uses to go the other way. Keys not
// present here are dropped at the HID gadget destination.
var hidUsage = map[uint16]byte{
	30: 0x04, 48: 0x05, 46: 0x06, 32: 0x07, 18: 0x08, 33: 0x09, 34: 0x0A, 35: 0x0B,
	23: 0x0C, 36: 0x0D, 37: 0x0E, 38: 0x0F, 50: 0x10, 49: 0x11, 24: 0x12, 25: 0x13,
	16: 0x14, 19: 0x15, 31: 0x16, 20: 0x17, 22: 0x18, 47: 0x19, 17: 0x1A, 45: 0x1B,
	21: 0x1C, 44: 0x1D,

	2: 0x1E, 3: 0x1F, 4: 0x20, 5: 0x21, 6: 0x22, 7: 0x23, 8: 0x24, 9: 0x25, 10: 0x26, 11: 0x27,

	28: 0x28, 1: 0x29, 14: 0x2A, 15: 0x2B, 57: 0x2C,
	12: 0x2D, 13: 0x2E, 26: 0x2F, 27: 0x30, 43: 0x31,
	39: 0x33, 40: 0x34, 41: 0x35, 51: 0x36, 52: 0x37, 53: 0x38, 58: 0x39,

	59: 0x3A, 60: 0x3B, 61: 0x3C, 62: 0x3D, 63: 0x3E, 64: 0x3F,
	65: 0x40, 66: 0x41, 67: 0x42, 68: 0x43, 87: 0x44, 88: 0x45,

	110: 0x49, 102: 0x4A, 104: 0x4B, 111: 0x4C, 107: 0x4D, 109: 0x4E,
	106: 0x4F, 105: 0x50, 108: 0x51, 103: 0x52,

	69: 0x53, 98: 0x54, 55: 0x55, 96: 0x58,
}

// hidModifierBit maps modifier KEY_* codes to their bit position in the
// boot-keyboard report's byte 0 (usage 0xE0-0xE7).
var hidModifierBit = map[uint16]byte{
	29:  0, // KEY_LEFTCTRL
	42:  1, // KEY_LEFTSHIFT
	56:  2, // KEY_LEFTALT
	125: 3, // KEY_LEFTMETA
	97:  4, // KEY_RIGHTCTRL
	54:  5, // KEY_RIGHTSHIFT
	100: 6, // KEY_RIGHTALT
	126: 7, // KEY_RIGHTMETA
}
