// package bridge implements the command protocol between a host and
// a BDM port.
//
// Every command is a single ASCII byte. Send commands are followed by
// 2 bytes of big-endian data. Packets are returned as a status marker
// followed by 2 bytes of big-endian data. Recognized commands end
// with an ack byte; unknown commands are answered by a single nak
// byte.
package bridge

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"

	"cfbdm.org/bdm"
)

// Command bytes.
const (
	CmdPing        = 'P'
	CmdBreakpoint  = 'B'
	CmdReset       = 'R'
	CmdSendReceive = 'S'
	CmdSend        = 's'
	CmdReceive     = 'r'
)

// Response bytes.
const (
	Ack = 'A'
	Nak = 'N'
	// StatusSet and StatusClear encode the packet status bit.
	StatusSet   = 'Y'
	StatusClear = 'N'
)

// Pong is the reply to CmdPing.
const Pong = "PONG"

// Banner is written before the first command if enabled.
var Banner = []string{
	"Motorola Coldfire Debug Interface",
	"Ready.",
}

// Port is the subset of *bdm.Port driven by commands.
type Port interface {
	Exchange(data uint16) (bdm.Packet, error)
	Send(data uint16) error
	Receive() (bdm.Packet, error)
	EnterDebugMode(reset bool) error
}

type Bridge struct {
	port Port
	log  *log.Logger
	// Banner enables the startup banner.
	Banner bool
	// Debug enables logging of every command.
	Debug bool
}

// New returns a Bridge driving port. A nil logger means the standard
// logger.
func New(port Port, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Default()
	}
	return &Bridge{port: port, log: logger}
}

// Serve reads and executes commands from rw until reading or writing
// fails. A command whose payload never arrives blocks Serve. Pin
// errors do not end Serve; see Handle.
func (b *Bridge) Serve(rw io.ReadWriter) error {
	r := bufio.NewReader(rw)
	w := bufio.NewWriter(rw)
	if b.Banner {
		for _, l := range Banner {
			fmt.Fprintf(w, "%s\n", l)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
	}
	for {
		cmd, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("bridge: %w", err)
		}
		if err := b.Handle(cmd, r, w); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
	}
}

// Handle executes cmd, reading its payload from r and writing the
// response to w. A command failed by the pins is logged and answered
// by a single nak byte in place of its response.
func (b *Bridge) Handle(cmd byte, r io.Reader, w io.Writer) error {
	var resp []byte
	switch cmd {
	case CmdPing:
		resp = append(resp, Pong...)
	case CmdBreakpoint, CmdReset:
		if err := b.port.EnterDebugMode(cmd == CmdReset); err != nil {
			return b.pinFailure(cmd, err, w)
		}
	case CmdSendReceive:
		data, err := readData(r)
		if err != nil {
			return fmt.Errorf("bridge: %c: %w", cmd, err)
		}
		pkt, err := b.port.Exchange(data)
		if err != nil {
			return b.pinFailure(cmd, err, w)
		}
		resp = appendPacket(resp, pkt)
	case CmdSend:
		data, err := readData(r)
		if err != nil {
			return fmt.Errorf("bridge: %c: %w", cmd, err)
		}
		if err := b.port.Send(data); err != nil {
			return b.pinFailure(cmd, err, w)
		}
	case CmdReceive:
		pkt, err := b.port.Receive()
		if err != nil {
			return b.pinFailure(cmd, err, w)
		}
		resp = appendPacket(resp, pkt)
	default:
		if b.Debug {
			b.log.Printf("bridge: unknown command %#02x", cmd)
		}
		return writeAll(w, []byte{Nak})
	}
	if b.Debug {
		b.log.Printf("bridge: %c -> %q", cmd, resp)
	}
	resp = append(resp, Ack)
	return writeAll(w, resp)
}

func (b *Bridge) pinFailure(cmd byte, err error, w io.Writer) error {
	b.log.Printf("bridge: %c: %v", cmd, err)
	return writeAll(w, []byte{Nak})
}

func readData(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func appendPacket(b []byte, pkt bdm.Packet) []byte {
	status := byte(StatusClear)
	if pkt.Status {
		status = StatusSet
	}
	b = append(b, status)
	return binary.BigEndian.AppendUint16(b, pkt.Data)
}

func writeAll(w io.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}
