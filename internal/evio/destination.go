package evio

import (
	"fmt"

	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
)

// DestinationDevice is the narrow contract the Hub's forwarder needs: push
// a batch, release resources on removal.
type DestinationDevice interface {
	WriteBatch(batch ievent.Batch) error
	Close() error
}

// BuildDestination materializes the variant named by dest.Kind, mirroring
// desc's capabilities per the construction contract.
func BuildDestination(dest config.Destination, desc Descriptor, log *hublog.Logger) (DestinationDevice, error) {
	switch dest.Kind {
	case config.DestUinput:
		return NewUinputDest(desc)
	case config.DestSubprocess:
		return NewSubprocessDest(dest.Command, desc, log)
	case config.DestHIDGadget:
		return NewHIDGadgetDest(dest.HIDGadgetPath, log)
	default:
		return nil, fmt.Errorf("evio: unknown destination kind %q", dest.Kind)
	}
}
