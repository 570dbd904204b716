// package rpigpio drives BDM pins through the GPIO lines of a
// Raspberry Pi or any other host supported by periph.
package rpigpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"cfbdm.org/bdm"
)

// Pins implements bdm.Pins on periph GPIO lines.
type Pins struct {
	lines [numRoles]gpio.PinIO
	dir   [numRoles]bdm.Direction
	level [numRoles]gpio.Level
}

const numRoles = int(bdm.Reset) + 1

// Open initializes the host drivers and resolves the line of each
// role by name. The lines are left unconfigured until bdm.Port.Init.
func Open(names func(r bdm.Role) string) (*Pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("rpigpio: %w", err)
	}
	p := new(Pins)
	for r := range bdm.Role(numRoles) {
		name := names(r)
		l := gpioreg.ByName(name)
		if l == nil {
			return nil, fmt.Errorf("rpigpio: %v: no such pin %q", r, name)
		}
		p.lines[r] = l
	}
	return p, nil
}

// New returns Pins for already resolved lines, indexed by role.
func New(lines ...gpio.PinIO) (*Pins, error) {
	if len(lines) != numRoles {
		return nil, fmt.Errorf("rpigpio: %d lines, want %d", len(lines), numRoles)
	}
	p := new(Pins)
	copy(p.lines[:], lines)
	return p, nil
}

func (p *Pins) Configure(r bdm.Role, d bdm.Direction) error {
	l := p.lines[r]
	var err error
	switch d {
	case bdm.Output:
		err = l.Out(p.level[r])
	default:
		// Released lines are pulled up by the target.
		err = l.In(gpio.Float, gpio.NoEdge)
	}
	if err != nil {
		return fmt.Errorf("rpigpio: %s: %w", l.Name(), err)
	}
	p.dir[r] = d
	return nil
}

func (p *Pins) Write(r bdm.Role, lvl gpio.Level) error {
	p.level[r] = lvl
	if p.dir[r] != bdm.Output {
		return nil
	}
	if err := p.lines[r].Out(lvl); err != nil {
		return fmt.Errorf("rpigpio: %s: %w", p.lines[r].Name(), err)
	}
	return nil
}

func (p *Pins) Read(r bdm.Role) gpio.Level {
	return p.lines[r].Read()
}

// Halt releases every line.
func (p *Pins) Halt() error {
	for r, l := range p.lines {
		if err := l.In(gpio.Float, gpio.NoEdge); err != nil {
			return fmt.Errorf("rpigpio: %s: %w", l.Name(), err)
		}
		p.dir[r] = bdm.Input
	}
	return nil
}
