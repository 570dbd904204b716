// package config loads the bridge configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cfbdm.org/bdm"
)

// PinMap names the GPIO line of each BDM signal, in the form
// accepted by periph's gpioreg, such as "GPIO17".
type PinMap struct {
	Clock      string `yaml:"dsclk"`
	DataOut    string `yaml:"dsi"`
	DataIn     string `yaml:"dso"`
	Breakpoint string `yaml:"bkpt"`
	Reset      string `yaml:"reset"`
}

// Pin returns the line name of r.
func (m PinMap) Pin(r bdm.Role) string {
	switch r {
	case bdm.Clock:
		return m.Clock
	case bdm.DataOut:
		return m.DataOut
	case bdm.DataIn:
		return m.DataIn
	case bdm.Breakpoint:
		return m.Breakpoint
	case bdm.Reset:
		return m.Reset
	default:
		return ""
	}
}

// Duration is a time.Duration written as a string, such as "50ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the configuration of the bridge daemon.
type Config struct {
	// Device is the serial device facing the host.
	Device string `yaml:"device"`
	// Banner enables the startup banner.
	Banner bool     `yaml:"banner"`
	Pins   PinMap   `yaml:"pins"`
	Settle Duration `yaml:"settle"`
	Hold   Duration `yaml:"hold"`
}

// Default returns the configuration for a Raspberry Pi in USB gadget
// mode.
func Default() *Config {
	return &Config{
		Device: "/dev/ttyGS0",
		Pins: PinMap{
			Clock:      "GPIO17",
			DataOut:    "GPIO27",
			DataIn:     "GPIO22",
			Breakpoint: "GPIO23",
			Reset:      "GPIO24",
		},
		Settle: Duration(bdm.DefaultSettle),
		Hold:   Duration(bdm.DefaultHold),
	}
}

// Load reads the configuration file at path. Settings missing from
// the file keep their default.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

var (
	ErrMissingPin   = errors.New("missing pin")
	ErrDuplicatePin = errors.New("duplicate pin")
)

// Validate checks that every signal has its own pin and that the
// timing is sane.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("no device specified")
	}
	roles := []bdm.Role{bdm.Clock, bdm.DataOut, bdm.DataIn, bdm.Breakpoint, bdm.Reset}
	seen := make(map[string]bdm.Role)
	for _, r := range roles {
		name := c.Pins.Pin(r)
		if name == "" {
			return fmt.Errorf("%w: %v", ErrMissingPin, r)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s for %v and %v", ErrDuplicatePin, name, other, r)
		}
		seen[name] = r
	}
	if c.Settle < 0 || c.Hold < 0 {
		return errors.New("negative delay")
	}
	return nil
}
