package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"cfbdm.org/bdm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bdmbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "/dev/ttyGS0", c.Device)
	assert.Equal(t, bdm.DefaultHold, time.Duration(c.Hold))
	assert.Equal(t, bdm.DefaultSettle, time.Duration(c.Settle))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device: /dev/ttyACM0
banner: true
settle: 0s
hold: 20ms
pins:
  dsclk: GPIO5
  dsi: GPIO6
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", c.Device)
	assert.True(t, c.Banner)
	assert.Equal(t, time.Duration(0), time.Duration(c.Settle))
	assert.Equal(t, 20*time.Millisecond, time.Duration(c.Hold))
	assert.Equal(t, "GPIO5", c.Pins.Pin(bdm.Clock))
	assert.Equal(t, "GPIO6", c.Pins.Pin(bdm.DataOut))
	// Unset pins keep their defaults.
	assert.Equal(t, "GPIO22", c.Pins.Pin(bdm.DataIn))
	assert.Equal(t, "GPIO24", c.Pins.Pin(bdm.Reset))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"shared pin", "pins: {dsclk: GPIO2, dsi: GPIO2}", ErrDuplicatePin},
		{"missing pin", "pins: {bkpt: \"\"}", ErrMissingPin},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.content))
			assert.ErrorIs(t, err, test.want)
		})
	}

	_, err := Load(writeConfig(t, "hold: soon"))
	assert.Error(t, err)
	_, err = Load(writeConfig(t, "hold: -1ms"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(out), "hold: 50ms")

	c := new(Config)
	require.NoError(t, yaml.Unmarshal(out, c))
	assert.Equal(t, Default(), c)
}
