package bdm

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Simulator is a simulated target wired to a set of Pins. It also
// acts as a virtual clock for the Port driving it.
//
// The simulated target samples DSI on the rising edge of DSCLK and
// presents the next bit on DSO after the falling edge. A complete
// 17-bit packet is echoed back during the next packet, with the
// status bit set to Status.
type Simulator struct {
	// Loopback wires DSI directly to DSO instead of simulating a
	// target.
	Loopback bool
	// Status is the status bit of echoed packets.
	Status bool
	// Fault, if set, is returned by every Write and Configure.
	Fault error

	// Now is the virtual time advanced by Sleep.
	Now time.Duration
	// Events records every Configure and Write.
	Events []Event
	// Received lists the data of the packets received by the target.
	Received []uint16
	// Violations records protocol timing violations by the host, such
	// as sampling DSO while DSCLK is high.
	Violations []error

	dir   [numRoles]Direction
	level [numRoles]gpio.Level

	shiftIn uint32
	nin     int
	reply   uint32
	next    uint32
	nout    int
	dso     gpio.Level
}

// Op is the kind of a pin Event.
type Op int

const (
	OpConfigure Op = iota
	OpWrite
)

// Event is a recorded pin operation.
type Event struct {
	At    time.Duration
	Op    Op
	Role  Role
	Dir   Direction
	Level gpio.Level
}

func (e Event) String() string {
	switch e.Op {
	case OpConfigure:
		return fmt.Sprintf("%v %v %v", e.At, e.Role, e.Dir)
	default:
		l := "low"
		if e.Level == gpio.High {
			l = "high"
		}
		return fmt.Sprintf("%v %v %s", e.At, e.Role, l)
	}
}

const packetBits = 17

func NewSimulator() *Simulator {
	return &Simulator{
		// Load the first reply on the first falling edge.
		nout: packetBits,
	}
}

func (s *Simulator) Sleep(d time.Duration) {
	s.Now += d
}

func (s *Simulator) Configure(r Role, d Direction) error {
	if s.Fault != nil {
		return s.Fault
	}
	s.Events = append(s.Events, Event{At: s.Now, Op: OpConfigure, Role: r, Dir: d})
	s.dir[r] = d
	return nil
}

func (s *Simulator) Write(r Role, l gpio.Level) error {
	if s.Fault != nil {
		return s.Fault
	}
	s.Events = append(s.Events, Event{At: s.Now, Op: OpWrite, Role: r, Level: l})
	old := s.driven(r)
	s.level[r] = l
	s.edge(r, old)
	return nil
}

func (s *Simulator) Read(r Role) gpio.Level {
	if r != DataIn {
		return s.driven(r)
	}
	if s.dir[DataIn] != Input {
		s.violate("dso sampled while configured as output")
	}
	if s.driven(Clock) == gpio.High {
		s.violate("dso sampled while dsclk is high")
	}
	if s.Loopback {
		return s.driven(DataOut)
	}
	return s.dso
}

// Asserted reports whether an active low line is driven low.
func (s *Simulator) Asserted(r Role) bool {
	return s.dir[r] == Output && s.level[r] == gpio.Low
}

// driven returns the level seen by the target. Released lines are
// pulled up.
func (s *Simulator) driven(r Role) gpio.Level {
	if s.dir[r] != Output {
		return gpio.High
	}
	return s.level[r]
}

func (s *Simulator) edge(r Role, old gpio.Level) {
	if r != Clock || s.dir[Clock] != Output {
		return
	}
	switch now := s.level[Clock]; {
	case old == gpio.Low && now == gpio.High:
		s.rise()
	case old == gpio.High && now == gpio.Low:
		s.fall()
	}
}

func (s *Simulator) rise() {
	s.shiftIn <<= 1
	if s.driven(DataOut) == gpio.High {
		s.shiftIn |= 1
	}
	s.nin++
	if s.nin < packetBits {
		return
	}
	data := uint16(s.shiftIn)
	s.Received = append(s.Received, data)
	s.next = uint32(data)
	if s.Status {
		s.next |= 1 << 16
	}
	s.shiftIn, s.nin = 0, 0
}

func (s *Simulator) fall() {
	if s.nout == packetBits {
		s.reply, s.nout = s.next, 0
		s.next = 0
	}
	s.dso = gpio.Level((s.reply>>(packetBits-1-s.nout))&1 == 1)
	s.nout++
}

func (s *Simulator) violate(msg string) {
	s.Violations = append(s.Violations, fmt.Errorf("%v: %s", s.Now, msg))
}
