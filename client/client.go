// package client implements the host side of the bridge protocol.
package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/tarm/serial"

	"cfbdm.org/bdm"
	"cfbdm.org/bridge"
)

// Interface is implemented by Client and Recorder.
type Interface interface {
	Ping() error
	EnterDebugMode(reset bool) error
	Send(data uint16) error
	Receive() (bdm.Packet, error)
	Exchange(data uint16) (bdm.Packet, error)
}

var (
	ErrTimeout   = errors.New("timeout waiting for bridge")
	ErrNoAck     = errors.New("missing ack")
	ErrBadPong   = errors.New("unexpected ping reply")
	ErrBadStatus = errors.New("invalid status marker")
	ErrNoSync    = errors.New("bridge did not synchronize")

	// ErrTargetError and ErrIllegalCommand are the target's replies
	// to a failed or unknown debug command.
	ErrTargetError    = errors.New("target responded with error")
	ErrIllegalCommand = errors.New("target responded with illegal command")
)

const (
	// ReadTimeout bounds every read from a serial device opened by
	// Open.
	ReadTimeout = 100 * time.Millisecond
	// maxIdleReads is the number of empty reads before giving up.
	maxIdleReads = 10
	// maxSyncAttempts bounds the probes sent by Sync.
	maxSyncAttempts = 100
	// maxSyncDiscard bounds the bytes discarded while resynchronizing.
	maxSyncDiscard = 256
)

// Open opens the serial device of a bridge. An empty dev tries the
// usual USB CDC devices.
func Open(dev string) (*serial.Port, error) {
	const baudRate = 115200

	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("client: no device specified")
	}
	var firstErr error
	for _, dev := range devices {
		c := &serial.Config{Name: dev, Baud: baudRate, ReadTimeout: ReadTimeout}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("client: %w", err)
		}
	}
	return nil, firstErr
}

// Client talks to a bridge over a byte stream.
type Client struct {
	rw  io.ReadWriter
	buf [8]byte
}

func New(rw io.ReadWriter) *Client {
	return &Client{rw: rw}
}

// Sync brings the stream in step with the bridge: it probes with an
// invalid command until the bridge answers with a nak, then discards
// any buffered output and verifies the connection with pings.
func (c *Client) Sync() error {
	synced := false
	for i := 0; i < maxSyncAttempts && !synced; i++ {
		if err := c.write('?'); err != nil {
			return err
		}
		b, err := c.read(1)
		switch {
		case errors.Is(err, ErrTimeout):
		case err != nil:
			return err
		default:
			synced = b[0] == bridge.Nak
		}
	}
	if !synced {
		return ErrNoSync
	}
	if f, ok := c.rw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("client: %w", err)
		}
	}
	// Skip banner text and naks from earlier probes.
	if err := c.write(bridge.CmdPing); err != nil {
		return err
	}
	want := []byte(bridge.Pong + string(rune(bridge.Ack)))
	var tail []byte
	for n := 0; !bytes.HasSuffix(tail, want); n++ {
		if n == maxSyncDiscard {
			return ErrNoSync
		}
		b, err := c.read(1)
		if err != nil {
			return err
		}
		tail = append(tail, b[0])
		if len(tail) > len(want) {
			tail = tail[1:]
		}
	}
	for range 3 {
		if err := c.Ping(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Ping() error {
	if err := c.write(bridge.CmdPing); err != nil {
		return err
	}
	b, err := c.read(len(bridge.Pong))
	if err != nil {
		return err
	}
	if string(b) != bridge.Pong {
		return fmt.Errorf("%w: %q", ErrBadPong, b)
	}
	return c.checkAck()
}

// EnterDebugMode asks the bridge to halt the target, resetting it
// first if reset is set.
func (c *Client) EnterDebugMode(reset bool) error {
	cmd := byte(bridge.CmdBreakpoint)
	if reset {
		cmd = bridge.CmdReset
	}
	if err := c.write(cmd); err != nil {
		return err
	}
	return c.checkAck()
}

// Send sends a packet without reading the reply.
func (c *Client) Send(data uint16) error {
	if err := c.write(bridge.CmdSend, byte(data>>8), byte(data)); err != nil {
		return err
	}
	return c.checkAck()
}

// Receive reads a packet, sending a no-op packet of zeros.
func (c *Client) Receive() (bdm.Packet, error) {
	if err := c.write(bridge.CmdReceive); err != nil {
		return bdm.Packet{}, err
	}
	return c.readPacket()
}

// Exchange sends a packet while receiving the reply to the previous
// one.
func (c *Client) Exchange(data uint16) (bdm.Packet, error) {
	if err := c.write(bridge.CmdSendReceive, byte(data>>8), byte(data)); err != nil {
		return bdm.Packet{}, err
	}
	return c.readPacket()
}

func (c *Client) readPacket() (bdm.Packet, error) {
	b, err := c.read(3)
	if err != nil {
		return bdm.Packet{}, err
	}
	var pkt bdm.Packet
	switch b[0] {
	case bridge.StatusSet:
		pkt.Status = true
	case bridge.StatusClear:
	default:
		return bdm.Packet{}, fmt.Errorf("%w: %#02x", ErrBadStatus, b[0])
	}
	pkt.Data = binary.BigEndian.Uint16(b[1:])
	return pkt, c.checkAck()
}

func (c *Client) checkAck() error {
	b, err := c.read(1)
	if err != nil {
		return err
	}
	if b[0] != bridge.Ack {
		return fmt.Errorf("%w: got %#02x", ErrNoAck, b[0])
	}
	return nil
}

func (c *Client) write(data ...byte) error {
	if _, err := c.rw.Write(data); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	return nil
}

// read reads exactly n bytes. Serial devices signal a read timeout
// with an empty read, possibly with io.EOF.
func (c *Client) read(n int) ([]byte, error) {
	buf := c.buf[:n]
	got, idle := 0, 0
	for got < n {
		m, err := c.rw.Read(buf[got:])
		got += m
		switch {
		case m > 0:
			idle = 0
		case err == nil || errors.Is(err, io.EOF):
			idle++
			if idle == maxIdleReads {
				return nil, ErrTimeout
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("client: %w", err)
		}
	}
	return buf, nil
}

// Check reports the target's error encodings in a reply packet.
func Check(pkt bdm.Packet) error {
	if !pkt.Status {
		return nil
	}
	switch pkt.Data {
	case 0x0001:
		return ErrTargetError
	case 0xffff:
		return ErrIllegalCommand
	}
	return nil
}
