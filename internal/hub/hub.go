// Package hub implements the routing core (§4.5): it reconciles
// configuration state with live devices, binds sources to destinations,
// spawns forwarding workers, and performs handover on reconfiguration.
package hub

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/evdev-transformer/evdev-transformer/internal/activator"
	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/devmon"
	"github.com/evdev-transformer/evdev-transformer/internal/evio"
	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
	"github.com/evdev-transformer/evdev-transformer/internal/transform"
)

// trackedDevice pairs a SourceDevice with the handle needed to remove it
// from tracking when its backing device disappears.
type trackedDevice struct {
	dev     *evio.SourceDevice
	devnode string // empty for IPC-backed sources
}

// activation is the hub's record of one bound (source, destination) pair.
type activation struct {
	sourceDevice *evio.SourceDevice
	destName     string
	destDevice   evio.DestinationDevice
}

// Hub owns the Device Monitor, Config Store, IPC Listener, every
// SourceDevice and DestinationDevice, and the activation/pairing tables
// (§3 Ownership).
type Hub struct {
	log      *hublog.Logger
	cfgStore *config.Store
	monitor  *devmon.Monitor
	ipc      IPCSource

	mu                  sync.Mutex
	devicesByIdentifier map[string][]*trackedDevice
	activationByName    map[string]*activation
	destCache           map[string]evio.DestinationDevice
}

// IPCSource is the narrow contract the Hub needs from the IPC Listener:
// a channel of freshly accepted sources, each already carrying its
// identifier and descriptor (§4.6).
type IPCSource interface {
	Sources() <-chan IPCSourceHandle
}

// IPCSourceHandle is what the IPC Listener hands the Hub for one accepted
// connection.
type IPCSourceHandle struct {
	Identifier config.Identifier
	Descriptor evio.Descriptor
	Reader     evio.Reader
}

func New(log *hublog.Logger, cfgStore *config.Store, monitor *devmon.Monitor, ipc IPCSource) *Hub {
	return &Hub{
		log:                 log,
		cfgStore:            cfgStore,
		monitor:             monitor,
		ipc:                 ipc,
		devicesByIdentifier: make(map[string][]*trackedDevice),
		activationByName:    make(map[string]*activation),
		destCache:           make(map[string]evio.DestinationDevice),
	}
}

// identifierKey renders a config.Identifier as a stable map key.
func identifierKey(id config.Identifier) string {
	switch id.Kind {
	case config.SourceEvdevUnixSocket:
		return fmt.Sprintf("socket|%s|%s|%s", id.Host, id.Vendor, id.Product)
	default:
		keys := make([]string, 0, len(id.Udev))
		for k := range id.Udev {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("udev|")
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(id.Udev[k])
			b.WriteByte(';')
		}
		return b.String()
	}
}

func matchesUdevAttrs(rule, attrs map[string]string) bool {
	for k, v := range rule {
		if attrs[k] != v {
			return false
		}
	}
	return true
}

// Run registers every evdev_udev source's attributes with the Device
// Monitor and drains the three event sources (Device Monitor, Config
// Store, IPC Listener) that trigger reconciliation, until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for _, src := range h.cfgStore.Config().Sources {
		if src.Kind == config.SourceEvdevUdev {
			h.monitor.AddMonitoredAttrs(src.UdevAttrs)
		}
	}

	devEvents := h.monitor.Events()
	cfgEvents := h.cfgStore.Events()
	var ipcEvents <-chan IPCSourceHandle
	if h.ipc != nil {
		ipcEvents = h.ipc.Sources()
	}

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-devEvents:
			if !ok {
				devEvents = nil
				continue
			}
			h.handleDeviceEvent(ev)
			h.updateLinks()
		case _, ok := <-cfgEvents:
			if !ok {
				cfgEvents = nil
				continue
			}
			h.updateLinks()
		case handle, ok := <-ipcEvents:
			if !ok {
				ipcEvents = nil
				continue
			}
			h.handleIPCSource(handle)
			h.updateLinks()
		}
	}
}

func (h *Hub) handleDeviceEvent(ev devmon.Event) {
	cfg := h.cfgStore.Config()
	switch ev.Action {
	case devmon.ActionAdd:
		for _, src := range cfg.Sources {
			if src.Kind != config.SourceEvdevUdev {
				continue
			}
			if !matchesUdevAttrs(src.UdevAttrs, ev.Attrs) {
				continue
			}
			reader, desc, err := evio.OpenEvdev(ev.DevNode)
			if err != nil {
				h.log.Warnf("open %s for source %q: %v", ev.DevNode, src.Name, err)
				continue
			}
			dev := evio.New(src.Identifier(), desc, reader, h.log)
			key := identifierKey(src.Identifier())
			h.mu.Lock()
			h.devicesByIdentifier[key] = append(h.devicesByIdentifier[key], &trackedDevice{dev: dev, devnode: ev.DevNode})
			h.mu.Unlock()
		}
	case devmon.ActionRemove:
		h.mu.Lock()
		for key, list := range h.devicesByIdentifier {
			kept := list[:0]
			for _, td := range list {
				if td.devnode == ev.DevNode {
					td.dev.Release()
					continue
				}
				kept = append(kept, td)
			}
			h.devicesByIdentifier[key] = kept
		}
		h.mu.Unlock()
	}
}

func (h *Hub) handleIPCSource(handle IPCSourceHandle) {
	dev := evio.New(handle.Identifier, handle.Descriptor, handle.Reader, h.log)
	key := identifierKey(handle.Identifier)
	h.mu.Lock()
	h.devicesByIdentifier[key] = append(h.devicesByIdentifier[key], &trackedDevice{dev: dev})
	h.mu.Unlock()
}

// updateLinks is the reconciliation loop (§4.5 "update_links").
func (h *Hub) updateLinks() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := h.cfgStore.Config()
	seen := make(map[string]struct{})

	for rl := range h.cfgStore.CurrentLinks() {
		for _, src := range rl.Sources {
			seen[src.Name] = struct{}{}
			h.reconcileSource(cfg, rl, src)
		}
	}

	for name, act := range h.activationByName {
		if _, ok := seen[name]; !ok {
			act.sourceDevice.Release()
			delete(h.activationByName, name)
		}
	}
}

func (h *Hub) reconcileSource(cfg *config.Config, rl config.ResolvedLink, src config.Source) {
	key := identifierKey(src.Identifier())
	devices := h.devicesByIdentifier[key]
	if len(devices) == 0 {
		delete(h.activationByName, src.Name)
		return
	}

	if act, ok := h.activationByName[src.Name]; ok && act.destName != rl.Link.Destination {
		// Handover (§4.5): release the old binding and wait for its release
		// epilogue to actually finish draining before any destination is
		// rebound to this SourceDevice — Events() refuses re-entry while the
		// old decode goroutine is still shutting down.
		done := act.sourceDevice.Done()
		act.sourceDevice.Release()
		if done != nil {
			<-done
		}
		delete(h.activationByName, src.Name)
	}

	if len(devices) > 1 {
		keep := devices[len(devices)-1]
		for _, stale := range devices[:len(devices)-1] {
			stale.dev.Release()
		}
		devices = []*trackedDevice{keep}
		h.devicesByIdentifier[key] = devices
	}
	dev := devices[0].dev

	chain, err := transform.Build(src.Transforms)
	if err != nil {
		h.log.Errorf("build transforms for source %q: %v", src.Name, err)
		return
	}
	dev.SetTransforms(chain)
	dev.SetActivators(h.buildActivators(rl.Group, rl.Link.Activators))

	if _, exists := h.activationByName[src.Name]; exists {
		return
	}

	destKey := src.Name + "|" + rl.Link.Destination
	destDev, ok := h.destCache[destKey]
	if !ok {
		var err error
		destDev, err = evio.BuildDestination(cfg.Destinations[rl.Link.Destination], dev.Descriptor, h.log)
		if err != nil {
			h.log.Errorf("build destination %q for source %q: %v", rl.Link.Destination, src.Name, err)
			return
		}
		h.destCache[destKey] = destDev
	}

	act := &activation{sourceDevice: dev, destName: rl.Link.Destination, destDevice: destDev}
	h.activationByName[src.Name] = act
	h.spawnForwarder(src.Name, act)
}

// buildActivators builds one Activator per config entry, each wired to
// cycle_link with that specific activator as the filter (§4.5 "Activator
// callbacks invoke cycle_link(group, activator)").
func (h *Hub) buildActivators(group string, configs []config.ActivatorConfig) []activator.Activator {
	out := make([]activator.Activator, 0, len(configs))
	for _, c := range configs {
		c := c
		built, err := activator.Build([]config.ActivatorConfig{c}, func() {
			if err := h.cfgStore.CycleLink(group, &c); err != nil {
				h.log.Warnf("cycle_link(%s): %v", group, err)
			}
		})
		if err != nil {
			h.log.Errorf("build activator for group %q: %v", group, err)
			continue
		}
		out = append(out, built...)
	}
	return out
}

// spawnForwarder starts the one worker per SourceDevice described in
// §4.5: it owns the device's single events() invocation for as long as the
// activation survives, and never holds the hub mutex while delivering.
func (h *Hub) spawnForwarder(sourceName string, act *activation) {
	go func() {
		batches := act.sourceDevice.Events()
		if batches == nil {
			return
		}
		for batch := range batches {
			if err := act.destDevice.WriteBatch(batch); err != nil {
				h.log.Warnf("forward to %q: %v", act.destName, err)
			}
		}
		h.mu.Lock()
		if cur, ok := h.activationByName[sourceName]; ok && cur == act {
			delete(h.activationByName, sourceName)
		}
		h.mu.Unlock()
	}()
}
