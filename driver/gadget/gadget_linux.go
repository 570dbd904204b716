// package gadget opens the serial function of a USB gadget, such as
// /dev/ttyGS0, in raw mode.
package gadget

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultDevice is the tty of the first gadget serial function.
const DefaultDevice = "/dev/ttyGS0"

// Open opens the tty at path for raw 8-bit transfers: no echo, no
// line editing and no translation of carriage returns or newlines.
func Open(path string) (*os.File, error) {
	if path == "" {
		path = DefaultDevice
	}
	s, err := os.OpenFile(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0o666)
	if err != nil {
		return nil, fmt.Errorf("gadget: %w", err)
	}
	if err := makeRaw(s); err != nil {
		s.Close()
		return nil, fmt.Errorf("gadget: %s: %w", path, err)
	}
	return s, nil
}

func makeRaw(s *os.File) error {
	c, err := s.SyscallConn()
	if err != nil {
		return err
	}
	var terr error
	err = c.Control(func(fd uintptr) {
		terr = unix.IoctlSetTermios(int(fd), unix.TCSETS, rawTermios())
	})
	if err != nil {
		return err
	}
	return terr
}

func rawTermios() *unix.Termios {
	t := &unix.Termios{
		Iflag: unix.IGNPAR,
		Cflag: unix.CREAD | unix.CLOCAL | unix.CS8 | unix.B115200,
	}
	// Block until at least one byte is available.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return t
}
