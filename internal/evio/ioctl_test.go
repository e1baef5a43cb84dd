package evio

import "testing"

// These pin the hand-computed _IOC values against the well-known numeric
// constants from linux/input.h and linux/uinput.h, so a mistake in the dir/
// type/nr/size encoding fails loudly instead of surfacing as a mysterious
// ENOTTY at runtime.
func TestIoctlConstantsMatchKernelValues(t *testing.T) {
	cases := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"EVIOCGVERSION", eviocgversion, 0x80044501},
		{"EVIOCGID", eviocgid, 0x80084502},
		{"EVIOCGREP", eviocgrep, 0x80084503},
		{"EVIOCSREP", eviocsrep, 0x40084503},
		{"EVIOCGRAB", eviocgrab, 0x40044590},
		{"EVIOCGKEY(0)", eviocgkey(0), 0x80004518},
		{"EVIOCGBIT(0,0)", eviocgbit(0, 0), 0x80004520},
		{"UI_DEV_CREATE", uiDevCreate, 0x5501},
		{"UI_DEV_DESTROY", uiDevDestroy, 0x5502},
		{"UI_SET_EVBIT", uiSetEvBit, 0x40045564},
		{"UI_SET_KEYBIT", uiSetKeyBit, 0x40045565},
		{"UI_SET_RELBIT", uiSetRelBit, 0x40045566},
		{"UI_SET_ABSBIT", uiSetAbsBit, 0x40045567},
		{"UI_SET_PROPBIT", uiSetPropBit, 0x4004556e},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got 0x%x, want 0x%x", c.name, c.got, c.want)
		}
	}
}

func TestEviocgabsEncodesAbsCode(t *testing.T) {
	abs0 := eviocgabs(0)
	abs1 := eviocgabs(1)
	if abs0 == abs1 {
		t.Fatal("EVIOCGABS should vary by abs code")
	}
}

func TestRawEventSizeMatchesWireLayout(t *testing.T) {
	var e rawEvent
	if got := len(e.bytes()); got != rawEventSize {
		t.Fatalf("rawEvent.bytes() length = %d, want %d", got, rawEventSize)
	}
}
