package evio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/pkg/wire"
)

// SubprocessDest spawns a child process and speaks the newline-delimited
// JSON wire protocol on its stdin (subprocess variant, newline-delimited wire
// format). A broken-pipe write triggers a respawn with the descriptor
// re-sent before the next batch on respawn.
type SubprocessDest struct {
	mu      sync.Mutex
	command []string
	desc    Descriptor
	log     *hublog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	sentID bool
}

func NewSubprocessDest(command []string, desc Descriptor, log *hublog.Logger) (*SubprocessDest, error) {
	d := &SubprocessDest{command: command, desc: desc, log: log}
	if err := d.spawn(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *SubprocessDest) spawn() error {
	if len(d.command) == 0 {
		return fmt.Errorf("subprocess destination: empty command")
	}
	cmd := exec.Command(d.command[0], d.command[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("subprocess stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("subprocess start: %w", err)
	}
	d.cmd = cmd
	d.stdin = stdin
	d.sentID = false
	return nil
}

func (d *SubprocessDest) sendDescriptor() error {
	host, _ := os.Hostname()
	env := wire.DescriptorEnvelope{
		Host:    host,
		Vendor:  fmt.Sprintf("%04x", d.desc.ID.Vendor),
		Product: fmt.Sprintf("%04x", d.desc.ID.Product),
		Data:    d.desc.ToWire(),
	}
	line, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := d.stdin.Write(append(line, '\n')); err != nil {
		return err
	}
	d.sentID = true
	return nil
}

func (d *SubprocessDest) WriteBatch(batch ievent.Batch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sentID {
		if err := d.sendDescriptor(); err != nil {
			return d.handleWriteError(err)
		}
	}

	msg := wire.BatchMessage{Events: make([]wire.Event, len(batch))}
	for i, ev := range batch {
		msg.Events[i] = wire.Event{Type: ev.Type, Code: ev.Code, Value: ev.Value}
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("subprocess: encode batch: %w", err)
	}
	if _, err := d.stdin.Write(append(line, '\n')); err != nil {
		return d.handleWriteError(err)
	}
	return nil
}

// handleWriteError respawns the child and resends the descriptor before
// any further batch, per the broken-pipe contract.
func (d *SubprocessDest) handleWriteError(writeErr error) error {
	d.log.Warnf("subprocess destination write failed, respawning: %v", writeErr)
	d.stdin.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	if err := d.spawn(); err != nil {
		return fmt.Errorf("subprocess respawn: %w", err)
	}
	return d.sendDescriptor()
}

func (d *SubprocessDest) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stdin.Close()
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	return nil
}
