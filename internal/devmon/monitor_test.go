package devmon

import "testing"

func TestIsEvdevNode(t *testing.T) {
	cases := map[string]bool{
		"/dev/input/event3": true,
		"/dev/input/mice":   false,
		"/dev/usb/hiddev0":  false,
	}
	for path, want := range cases {
		if got := isEvdevNode(path); got != want {
			t.Errorf("isEvdevNode(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestIsVirtualSyspath(t *testing.T) {
	if !isVirtualSyspath("/sys/devices/virtual/input/input9/event3") {
		t.Error("expected a /devices/virtual/ path to be recognized as virtual")
	}
	if isVirtualSyspath("/sys/devices/pci0000:00/0000:00:14.0/usb1/input/input3") {
		t.Error("a real PCI/USB path should not be flagged virtual")
	}
}

func TestMatchesAttrsRequiresEveryRuleKey(t *testing.T) {
	rule := map[string]string{"ID_VENDOR_ID": "046d", "ID_MODEL_ID": "c52b"}
	attrs := map[string]string{"ID_VENDOR_ID": "046d", "ID_MODEL_ID": "c52b", "ID_SERIAL": "x"}
	if !matchesAttrs(rule, attrs) {
		t.Error("expected match when attrs is a superset of the rule")
	}
	if matchesAttrs(rule, map[string]string{"ID_VENDOR_ID": "046d"}) {
		t.Error("expected no match when a rule key is absent from attrs")
	}
}

func TestAttrKeyIsStableAcrossEquivalentMaps(t *testing.T) {
	a := map[string]string{"ID_VENDOR_ID": "046d", "ID_MODEL_ID": "c52b"}
	b := map[string]string{"ID_MODEL_ID": "c52b", "ID_VENDOR_ID": "046d"}
	// attrKey sorts keys, so equal maps built in different literal order
	// collide on the same rule key.
	if attrKey(a) == "" {
		t.Error("expected a non-empty rule key")
	}
	if attrKey(a) != attrKey(b) {
		t.Errorf("expected equal maps to share a rule key: %q vs %q", attrKey(a), attrKey(b))
	}
}

func TestAddAndRemoveMonitoredAttrs(t *testing.T) {
	m := New(nil)
	attrs := map[string]string{"ID_VENDOR_ID": "046d"}
	m.AddMonitoredAttrs(attrs)
	if len(m.rules) != 1 {
		t.Fatalf("expected 1 registered rule, got %d", len(m.rules))
	}
	m.RemoveMonitoredAttrs(attrs)
	if len(m.rules) != 0 {
		t.Fatalf("expected rule removed, got %d remaining", len(m.rules))
	}
}
