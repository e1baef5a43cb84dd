package hub

import (
	"testing"

	"github.com/evdev-transformer/evdev-transformer/internal/config"
)

func TestIdentifierKeyDistinguishesSocketAndUdev(t *testing.T) {
	socket := config.Identifier{Kind: config.SourceEvdevUnixSocket, Host: "h", Vendor: "v", Product: "p"}
	udev := config.Identifier{Kind: config.SourceEvdevUdev, Udev: map[string]string{"ID_VENDOR": "v"}}

	if identifierKey(socket) == identifierKey(udev) {
		t.Fatal("socket and udev identifiers must render to distinct keys")
	}
}

func TestIdentifierKeyIsOrderIndependentOverUdevAttrs(t *testing.T) {
	a := config.Identifier{Kind: config.SourceEvdevUdev, Udev: map[string]string{"ID_VENDOR": "v", "ID_MODEL": "m"}}
	b := config.Identifier{Kind: config.SourceEvdevUdev, Udev: map[string]string{"ID_MODEL": "m", "ID_VENDOR": "v"}}

	if identifierKey(a) != identifierKey(b) {
		t.Fatalf("expected stable key regardless of map iteration order: %q vs %q", identifierKey(a), identifierKey(b))
	}
}

func TestIdentifierKeyChangesWithAttrValue(t *testing.T) {
	a := config.Identifier{Kind: config.SourceEvdevUdev, Udev: map[string]string{"ID_VENDOR": "v1"}}
	b := config.Identifier{Kind: config.SourceEvdevUdev, Udev: map[string]string{"ID_VENDOR": "v2"}}
	if identifierKey(a) == identifierKey(b) {
		t.Fatal("expected distinct keys for distinct attribute values")
	}
}

func TestMatchesUdevAttrsRequiresAllRuleKeys(t *testing.T) {
	rule := map[string]string{"ID_VENDOR": "acme", "ID_MODEL": "widget"}
	attrs := map[string]string{"ID_VENDOR": "acme", "ID_MODEL": "widget", "ID_SERIAL": "123"}
	if !matchesUdevAttrs(rule, attrs) {
		t.Fatal("a device with extra attrs beyond the rule should still match")
	}

	partial := map[string]string{"ID_VENDOR": "acme"}
	if matchesUdevAttrs(rule, partial) {
		t.Fatal("matchesUdevAttrs should not match when a rule key is missing from attrs")
	}
}

func TestMatchesUdevAttrsRejectsValueMismatch(t *testing.T) {
	rule := map[string]string{"ID_VENDOR": "acme"}
	attrs := map[string]string{"ID_VENDOR": "other"}
	if matchesUdevAttrs(rule, attrs) {
		t.Fatal("expected mismatch to fail")
	}
}
