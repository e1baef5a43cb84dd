// Package devmon watches the OS for input-device attach/detach, yielding
// (action, attrs) tuples matching registered attribute rules .
package devmon

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Event is a single (action, device, matched_attrs) tuple.
type Event struct {
	Action  Action
	DevNode string
	Attrs   map[string]string
}

func attrKey(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	// sorted so equal maps always produce the same dedup key
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += k + "=" + attrs[k] + ";"
	}
	return s
}

// Monitor enumerates existing input devices and observes attach/detach
// notifications via the udev netlink socket.
type Monitor struct {
	mu       sync.Mutex
	rules    map[string]map[string]string // ruleKey -> attrs
	attached map[string]map[string]string // devnode -> attrs of devices currently believed present and matching a rule
	out      chan Event
	log      *hublog.Logger
	conn     *netlink.UEventConn
	started  bool
}

func New(log *hublog.Logger) *Monitor {
	return &Monitor{
		rules:    make(map[string]map[string]string),
		attached: make(map[string]map[string]string),
		out:      make(chan Event, 64),
		log:      log,
	}
}

// AddMonitoredAttrs registers an attribute map; idempotent.
func (m *Monitor) AddMonitoredAttrs(attrs map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[attrKey(attrs)] = attrs
}

// RemoveMonitoredAttrs unregisters a rule; emits a synthetic remove if a
// currently attached device matched it.
func (m *Monitor) RemoveMonitoredAttrs(attrs map[string]string) {
	m.mu.Lock()
	key := attrKey(attrs)
	delete(m.rules, key)
	var toRemove []Event
	for node, a := range m.attached {
		if matchesAttrs(attrs, a) {
			toRemove = append(toRemove, Event{Action: ActionRemove, DevNode: node, Attrs: a})
			delete(m.attached, node)
		}
	}
	m.mu.Unlock()

	for _, ev := range toRemove {
		m.out <- ev
	}
}

// isEvdevNode reports whether path is under the evdev input-event namespace.
func isEvdevNode(path string) bool {
	return strings.HasPrefix(path, "/dev/input/event")
}

// isVirtualSyspath reports whether a sysfs path belongs to a virtual
// device, so the router does not observe its own uinput outputs.
func isVirtualSyspath(syspath string) bool {
	return strings.Contains(syspath, "/devices/virtual/")
}

func matchesAttrs(rule, attrs map[string]string) bool {
	for k, v := range rule {
		if attrs[k] != v {
			return false
		}
	}
	return true
}

// Events produces the lazy sequence of device events: pre-existing devices
// first (to avoid startup races), then live netlink notifications.
func (m *Monitor) Events() <-chan Event {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return m.out
	}
	m.started = true
	m.mu.Unlock()

	m.enumerateExisting()
	go m.watch()
	return m.out
}

// enumerateExisting walks /sys/class/input/event* and emits matches before
// the live subscription begins.
func (m *Monitor) enumerateExisting() {
	entries, err := filepath.Glob("/sys/class/input/event*")
	if err != nil {
		m.log.Warnf("enumerate existing input devices: %v", err)
		return
	}
	for _, sysEntry := range entries {
		syspath, err := filepath.EvalSymlinks(sysEntry)
		if err != nil {
			m.log.Debugf("skip %s: %v", sysEntry, err)
			continue
		}
		if isVirtualSyspath(syspath) {
			continue
		}
		name := filepath.Base(syspath)
		devnode := "/dev/input/" + name
		if _, err := os.Stat(devnode); err != nil {
			continue
		}
		attrs := readUdevAttrs(syspath)

		m.mu.Lock()
		for _, rule := range m.rules {
			if matchesAttrs(rule, attrs) {
				m.attached[devnode] = attrs
				m.mu.Unlock()
				m.out <- Event{Action: ActionAdd, DevNode: devnode, Attrs: attrs}
				m.mu.Lock()
				break
			}
		}
		m.mu.Unlock()
	}
}

// readUdevAttrs reads the udev database record for a sysfs device, which
// carries the ID_VENDOR_ID/ID_MODEL_ID-style properties the config's
// udev_attrs match against.
func readUdevAttrs(syspath string) map[string]string {
	attrs := make(map[string]string)
	data, err := os.ReadFile(filepath.Join(syspath, "uevent"))
	if err != nil {
		return attrs
	}
	for _, line := range strings.Split(string(data), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		attrs[k] = v
	}

	major, minor, ok := parseDevT(filepath.Join(syspath, "dev"))
	if ok {
		dbPath := fmt.Sprintf("/run/udev/data/c%d:%d", major, minor)
		if dbData, err := os.ReadFile(dbPath); err == nil {
			for _, line := range strings.Split(string(dbData), "\n") {
				if !strings.HasPrefix(line, "E:") {
					continue
				}
				k, v, ok := strings.Cut(line[2:], "=")
				if ok {
					attrs[k] = v
				}
			}
		}
	}
	return attrs
}

func parseDevT(path string) (major, minor int, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}
	maj, min, found := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !found {
		return 0, 0, false
	}
	majorN, err1 := strconv.Atoi(maj)
	minorN, err2 := strconv.Atoi(min)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return majorN, minorN, true
}

// watch subscribes to the udev netlink monitor and forwards matching
// uevents. Transient per-device errors are logged and skipped; the
// subscription continues.
func (m *Monitor) watch() {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.log.Errorf("connect udev netlink monitor: %v", err)
		return
	}
	defer conn.Close()
	m.conn = conn

	queue := make(chan netlink.UEvent)
	errCh := make(chan error)
	matcher := &netlink.RuleDefinitions{Rules: []netlink.RuleDefinition{
		{Env: map[string]string{"SUBSYSTEM": "input"}},
	}}
	stop := conn.Monitor(queue, errCh, matcher)
	defer close(stop)

	for {
		select {
		case uevent, ok := <-queue:
			if !ok {
				return
			}
			m.handleUevent(uevent)
		case err, ok := <-errCh:
			if !ok {
				return
			}
			m.log.Warnf("udev monitor error (skipped): %v", err)
		}
	}
}

func (m *Monitor) handleUevent(uevent netlink.UEvent) {
	devName, ok := uevent.Env["DEVNAME"]
	if !ok {
		return
	}
	devnode := "/dev/" + strings.TrimPrefix(devName, "/")
	if !isEvdevNode(devnode) {
		return
	}
	if isVirtualSyspath(uevent.KObj) {
		return
	}

	var action Action
	switch uevent.Action {
	case netlink.ADD:
		action = ActionAdd
	case netlink.REMOVE:
		action = ActionRemove
	default:
		return
	}

	m.mu.Lock()
	var matchedRule map[string]string
	for _, rule := range m.rules {
		if matchesAttrs(rule, uevent.Env) {
			matchedRule = rule
			break
		}
	}
	if matchedRule == nil {
		m.mu.Unlock()
		return
	}
	if action == ActionAdd {
		m.attached[devnode] = uevent.Env
	} else {
		delete(m.attached, devnode)
	}
	m.mu.Unlock()

	m.out <- Event{Action: action, DevNode: devnode, Attrs: uevent.Env}
}
