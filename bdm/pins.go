package bdm

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Role is a logical BDM signal.
type Role int

const (
	// Clock is DSCLK, the serial clock driven by the bridge.
	Clock Role = iota
	// DataOut is DSI, the serial input of the target.
	DataOut
	// DataIn is DSO, the serial output of the target. It is valid a
	// couple of target cycles after the fall of DSCLK.
	DataIn
	// Breakpoint is BKPT, active low.
	Breakpoint
	// Reset is RSTI, active low.
	Reset

	numRoles = iota
)

func (r Role) String() string {
	switch r {
	case Clock:
		return "dsclk"
	case DataOut:
		return "dsi"
	case DataIn:
		return "dso"
	case Breakpoint:
		return "bkpt"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "out"
	}
	return "in"
}

// Pins binds each Role to a physical line.
//
// A Write to a role configured as input latches the level, which is
// driven once the role is configured as output. Breakpoint and Reset
// rely on this to emulate open-drain lines: they are asserted by
// writing Low and switching to output, and released by switching
// back to input.
type Pins interface {
	Configure(r Role, d Direction) error
	Write(r Role, l gpio.Level) error
	Read(r Role) gpio.Level
}

// Sleeper provides the delays between pin transitions.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SystemClock sleeps in wall-clock time. Delays shorter than the
// scheduler granularity are busy-waited.
type SystemClock struct{}

// spinThreshold is the longest delay that is busy-waited.
const spinThreshold = 100 * time.Microsecond

func (SystemClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d > spinThreshold {
		time.Sleep(d)
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}
