// Package ipc accepts remote sources over a local stream socket and turns
// each connection into a source the Hub treats uniformly with an evdev
// device (§4.6 IPC Listener).
package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/evio"
	"github.com/evdev-transformer/evdev-transformer/internal/hub"
	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
)

// SocketPath is the well-known IPC socket location (§6 "IPC socket").
func SocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "evdev-ipc.sock")
}

// Listener accepts unix-socket connections and converts them to
// hub.IPCSourceHandle values, satisfying hub.IPCSource.
type Listener struct {
	ln  net.Listener
	log *hublog.Logger
	out chan hub.IPCSourceHandle
}

// Listen opens the IPC socket at path with mode 0600 and backlog >= 1 (the
// net package's unix listener backlog is managed by the kernel default,
// which already satisfies "backlog >= 1").
func Listen(path string, log *hublog.Logger) (*Listener, error) {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	l := &Listener{ln: ln, log: log, out: make(chan hub.IPCSourceHandle, 8)}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.log.Warnf("ipc accept: %v", err)
			return
		}
		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	env, reader, err := evio.ReadDescriptorEnvelope(conn)
	if err != nil {
		l.log.Warnf("ipc: %v", err)
		conn.Close()
		return
	}
	id := config.Identifier{
		Kind:    config.SourceEvdevUnixSocket,
		Host:    env.Host,
		Vendor:  env.Vendor,
		Product: env.Product,
	}
	l.out <- hub.IPCSourceHandle{
		Identifier: id,
		Descriptor: evio.DescriptorFromWire(env.Data),
		Reader:     evio.NewSocketReader(conn, reader),
	}
}

// Sources implements hub.IPCSource.
func (l *Listener) Sources() <-chan hub.IPCSourceHandle {
	return l.out
}

func (l *Listener) Close() error {
	return l.ln.Close()
}
