// Package script describes the contract an embedded user-supplied
// transform or activator script must satisfy (§9 Design Notes: "Embedded
// scripts. Treated as opaque modules with the contract
// load(config) -> (input_codes, output_codes, fn)"). This build does not
// sandbox an embedded language, which the design notes explicitly allow:
// "the implementation language is free to choose any sandboxing mechanism,
// including 'not supported, refuse with a clear error'."
package script

import (
	"encoding/json"
	"errors"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
)

// ErrUnsupported is returned by Load for every script config; this build
// carries the contract but not a script runtime.
var ErrUnsupported = errors.New("script: embedded scripting is not supported in this build")

// Module is the opaque contract a loaded script satisfies.
type Module struct {
	InputCodes  map[uint16][]uint16
	OutputCodes map[uint16][]uint16
	Apply       func(ev ievent.Event) ([]ievent.Event, error)
}

// Load always fails with ErrUnsupported; see package doc.
func Load(properties json.RawMessage) (Module, error) {
	return Module{}, ErrUnsupported
}
