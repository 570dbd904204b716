// command bdmbridge exposes the Coldfire BDM port wired to the GPIO
// pins of this machine over a USB gadget serial device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cfbdm.org/bdm"
	"cfbdm.org/bridge"
	"cfbdm.org/driver/gadget"
	"cfbdm.org/driver/rpigpio"
	"cfbdm.org/internal/config"
)

// Version is set by the Go linker with -ldflags='-X main.Version=...'.
var Version string

var (
	configFile = flag.String("config", "", "configuration file")
	device     = flag.String("device", "", "serial device facing the host")
	banner     = flag.Bool("banner", false, "write the startup banner")
	verbose    = flag.Bool("v", false, "log every command")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bdmbridge: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	cfg := config.Default()
	if *configFile != "" {
		c, err := config.Load(*configFile)
		if err != nil {
			return err
		}
		cfg = c
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *banner {
		cfg.Banner = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	pins, err := rpigpio.Open(cfg.Pins.Pin)
	if err != nil {
		return err
	}
	port := bdm.NewPort(pins, bdm.SystemClock{})
	port.Settle = time.Duration(cfg.Settle)
	port.Hold = time.Duration(cfg.Hold)
	if err := port.Init(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ver := Version
	if ver == "" {
		ver = "devel"
	}
	log.Printf("bdmbridge %s: serving %s", ver, cfg.Device)
	b := bridge.New(port, nil)
	b.Banner = cfg.Banner
	b.Debug = *verbose
	open := func() (io.ReadWriteCloser, error) {
		return gadget.Open(cfg.Device)
	}
	err = serveLoop(ctx, b, open)
	// Release the target on the serving goroutine, after the last
	// command completed.
	if herr := pins.Halt(); herr != nil && err == nil {
		err = herr
	}
	return err
}

// reopenDelay is the pause before reopening the device after the host
// went away.
var reopenDelay = time.Second

// serveLoop serves b on the stream returned by open until ctx is
// done. When a stream fails, such as on a USB hangup, it is closed and
// reopened. Only the first open failing is fatal.
func serveLoop(ctx context.Context, b *bridge.Bridge, open func() (io.ReadWriteCloser, error)) error {
	s, err := open()
	if err != nil {
		return err
	}
	for {
		// Closing the stream unblocks Serve.
		unwatch := context.AfterFunc(ctx, func() { s.Close() })
		err := b.Serve(s)
		unwatch()
		s.Close()
		if ctx.Err() != nil {
			log.Print("bdmbridge: stopping")
			return nil
		}
		if errors.Is(err, io.EOF) {
			log.Printf("bdmbridge: host disconnected")
		} else {
			log.Printf("bdmbridge: %v", err)
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reopenDelay):
			}
			s, err = open()
			if err == nil {
				break
			}
			log.Printf("bdmbridge: %v", err)
		}
	}
}
