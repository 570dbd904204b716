package bdm

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// EnterDebugMode forces the target into background debug mode by
// asserting BKPT. If reset is set, RSTI is pulsed while BKPT is held
// so the target halts from reset.
//
// The sequence is open loop: the target is not queried for whether it
// entered debug mode.
func (p *Port) EnterDebugMode(reset bool) error {
	if err := p.assert(Breakpoint); err != nil {
		return err
	}
	p.clock.Sleep(p.Hold)
	if reset {
		if err := p.assert(Reset); err != nil {
			return err
		}
		p.clock.Sleep(p.Hold)
		if err := p.release(Reset); err != nil {
			return err
		}
		p.clock.Sleep(p.Hold)
	}
	if err := p.release(Breakpoint); err != nil {
		return err
	}
	p.clock.Sleep(p.Hold)
	return nil
}

// assert drives an active low line.
func (p *Port) assert(r Role) error {
	if err := p.pins.Write(r, gpio.Low); err != nil {
		return fmt.Errorf("bdm: assert %v: %w", r, err)
	}
	if err := p.pins.Configure(r, Output); err != nil {
		return fmt.Errorf("bdm: assert %v: %w", r, err)
	}
	return nil
}

// release lets the line float; the target pulls it high.
func (p *Port) release(r Role) error {
	if err := p.pins.Configure(r, Input); err != nil {
		return fmt.Errorf("bdm: release %v: %w", r, err)
	}
	return nil
}
