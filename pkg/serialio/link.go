package serialio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/librealarm/alarm-gateway/pkg/frame"
)

// ErrNotConnected is returned by operations that need an open port while
// the link is down.
var ErrNotConnected = errors.New("serialio: not connected")

// ErrNoDevice is returned by Connect when VID/PID detection finds nothing.
var ErrNoDevice = errors.New("serialio: no matching device found")

// openPort is swapped out in tests.
var openPort = serial.Open

// Link owns the serial handle to the alarm panel. It is shared between the
// command path and the RX loop; a single mutex guards the handle and the
// connected flag so every operation is one short critical section.
type Link struct {
	mu        sync.Mutex
	proto     frame.Protocol
	baud      int
	vid, pid  uint16
	timeout   time.Duration
	portName  string
	port      serial.Port
	connected bool
	pending   []byte
	rbuf      [64]byte
}

// NewLink returns an unconnected link. The port name is discovered on the
// first Connect via VID/PID detection.
func NewLink(proto frame.Protocol, baud int, vid, pid uint16, readTimeout time.Duration) *Link {
	return &Link{
		proto:   proto,
		baud:    baud,
		vid:     vid,
		pid:     pid,
		timeout: readTimeout,
	}
}

// Connect opens the port, detecting it first if no name is cached.
func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectLocked()
}

// Reconnect re-runs detection before connecting: after a replug the device
// may appear under a different OS name.
func (l *Link) Reconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name, ok := Detect(l.vid, l.pid); ok {
		l.portName = name
	}
	return l.connectLocked()
}

func (l *Link) connectLocked() error {
	if l.portName == "" {
		name, ok := Detect(l.vid, l.pid)
		if !ok {
			return ErrNoDevice
		}
		l.portName = name
	}

	// Close any prior handle before reopening.
	if l.port != nil {
		l.port.Close()
		l.port = nil
	}
	l.connected = false

	port, err := openPort(l.portName, &serial.Mode{BaudRate: l.baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", l.portName, err)
	}
	if err := port.SetReadTimeout(l.timeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout on %s: %w", l.portName, err)
	}

	l.port = port
	l.connected = true
	l.pending = l.pending[:0]
	log.Infof("[SERIAL] connected on %s at %d baud", l.portName, l.baud)
	return nil
}

// IsConnected reports whether the handle is open and the last operation did
// not raise a transport error.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected && l.port != nil
}

// InWaiting returns the number of bytes already drained from the device and
// not yet consumed by ReadByte.
func (l *Link) InWaiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// ReadByte returns one byte from the device, blocking for at most the
// configured read timeout. ok is false when the timeout expired with no
// data. A transport error marks the link disconnected.
func (l *Link) ReadByte() (b byte, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) > 0 {
		b = l.pending[0]
		l.pending = l.pending[1:]
		return b, true, nil
	}
	if !l.connected || l.port == nil {
		return 0, false, ErrNotConnected
	}

	n, err := l.port.Read(l.rbuf[:])
	if err != nil {
		l.disconnectLocked()
		return 0, false, fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		// read timeout, no data
		return 0, false, nil
	}
	l.pending = append(l.pending[:0], l.rbuf[1:n]...)
	return l.rbuf[0], true, nil
}

// Send frames a command and writes it in a single operation. On transport
// error the link is marked disconnected and the error returned.
func (l *Link) Send(command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected || l.port == nil {
		return ErrNotConnected
	}
	f, err := frame.Build(l.proto, command)
	if err != nil {
		return err
	}
	if _, err := l.port.Write(f); err != nil {
		l.disconnectLocked()
		return fmt.Errorf("write: %w", err)
	}
	log.Infof("[SERIAL] sent %s (frame: %s)", command, hex.EncodeToString(f))
	return nil
}

// WriteRaw writes a single byte, used for the protocol ACK.
func (l *Link) WriteRaw(b byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected || l.port == nil {
		return ErrNotConnected
	}
	if _, err := l.port.Write([]byte{b}); err != nil {
		l.disconnectLocked()
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Flush discards everything buffered on both sides of the port, including
// bytes already drained into the link.
func (l *Link) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = l.pending[:0]
	if !l.connected || l.port == nil {
		return ErrNotConnected
	}
	if err := l.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input buffer: %w", err)
	}
	if err := l.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("reset output buffer: %w", err)
	}
	return nil
}

// Disconnect marks the link down and releases the handle. Safe to call in
// any state.
func (l *Link) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectLocked()
}

func (l *Link) disconnectLocked() {
	l.connected = false
	if l.port != nil {
		l.port.Close()
		l.port = nil
	}
}

// Close releases the handle.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", l.portName, err)
	}
	log.Infof("[SERIAL] port %s closed", l.portName)
	return nil
}
