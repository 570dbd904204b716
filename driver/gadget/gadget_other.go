//go:build !linux

package gadget

import (
	"errors"
	"os"
)

const DefaultDevice = ""

func Open(path string) (*os.File, error) {
	return nil, errors.New("gadget: USB gadget serial is only supported on linux")
}
