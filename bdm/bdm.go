// package bdm implements the host side of the Motorola Coldfire
// Background Debug Mode serial interface by toggling GPIO pins.
//
// Serial data is exchanged in 17-bit packets, full-duplex:
//
//	to the target:   [0]      [16 bits of data]
//	from the target: [status] [16 bits of data]
//
// Both directions are most significant bit first.
package bdm

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

const (
	// DefaultSettle is the delay between DSI/DSCLK transitions. The
	// target presents DSO a couple of CPU cycles after the fall of
	// DSCLK, roughly 30ns in practice.
	DefaultSettle = time.Microsecond
	// DefaultHold is the time BKPT and RSTI are held in each step of
	// debug mode entry.
	DefaultHold = 50 * time.Millisecond
)

// Packet is the result of one full-duplex exchange.
type Packet struct {
	// Status is the first bit clocked out of the target. Its meaning is
	// defined by the target.
	Status bool
	Data   uint16
}

func (p Packet) String() string {
	s := 0
	if p.Status {
		s = 1
	}
	return fmt.Sprintf("%d:%#06x", s, p.Data)
}

// Port drives a BDM port through a set of Pins.
type Port struct {
	pins  Pins
	clock Sleeper
	// Settle is the delay between pin transitions during bit exchange.
	Settle time.Duration
	// Hold is the delay after each step of debug mode entry.
	Hold time.Duration
}

// NewPort returns a Port with default timing. A nil clock means
// SystemClock.
func NewPort(pins Pins, clock Sleeper) *Port {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Port{
		pins:   pins,
		clock:  clock,
		Settle: DefaultSettle,
		Hold:   DefaultHold,
	}
}

// Init configures the pin directions: DSCLK and DSI are outputs driven
// low, DSO is an input and BKPT and RSTI are released.
func (p *Port) Init() error {
	for _, r := range []Role{Clock, DataOut} {
		if err := p.pins.Write(r, gpio.Low); err != nil {
			return fmt.Errorf("bdm: %v: %w", r, err)
		}
		if err := p.pins.Configure(r, Output); err != nil {
			return fmt.Errorf("bdm: %v: %w", r, err)
		}
	}
	for _, r := range []Role{DataIn, Breakpoint, Reset} {
		if err := p.pins.Configure(r, Input); err != nil {
			return fmt.Errorf("bdm: %v: %w", r, err)
		}
	}
	return nil
}

func (p *Port) settle() {
	if p.Settle > 0 {
		p.clock.Sleep(p.Settle)
	}
}

// exchangeBit clocks one bit out on DSI and samples one bit from DSO
// after the falling edge of DSCLK.
func (p *Port) exchangeBit(bit bool) (bool, error) {
	if err := p.pins.Write(DataOut, gpio.Level(bit)); err != nil {
		return false, fmt.Errorf("bdm: dsi: %w", err)
	}
	p.settle()
	if err := p.pins.Write(Clock, gpio.High); err != nil {
		return false, fmt.Errorf("bdm: dsclk: %w", err)
	}
	p.settle()
	if err := p.pins.Write(Clock, gpio.Low); err != nil {
		return false, fmt.Errorf("bdm: dsclk: %w", err)
	}
	p.settle()
	return bool(p.pins.Read(DataIn)), nil
}

// Exchange sends data while receiving the target's reply to the
// previous packet.
func (p *Port) Exchange(data uint16) (Packet, error) {
	var pkt Packet
	status, err := p.exchangeBit(false)
	if err != nil {
		return Packet{}, err
	}
	pkt.Status = status
	for i := 15; i >= 0; i-- {
		bit, err := p.exchangeBit((data>>i)&1 == 1)
		if err != nil {
			return Packet{}, err
		}
		if bit {
			pkt.Data |= 1 << i
		}
	}
	return pkt, nil
}

// Send transmits data. The full 17 clocks are generated and the
// reply is discarded.
func (p *Port) Send(data uint16) error {
	_, err := p.Exchange(data)
	return err
}

// Receive reads a packet from the target while sending zeros.
func (p *Port) Receive() (Packet, error) {
	return p.Exchange(0)
}
