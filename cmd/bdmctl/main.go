// Command bdmctl sends raw BDM packets to a Coldfire target through
// a bdmbridge.
//
// Usage:
//
//	bdmctl [-device dev] [-n] command [args]
//
// Commands are ping, break, reset, send WORD, recv and xfer WORD...
// Words are 16-bit hexadecimal values. Received packets are printed
// as status:data.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"cfbdm.org/bdm"
	"cfbdm.org/client"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bdmctl: %v\n", err)
		os.Exit(2)
	}
}

func run(stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("bdmctl", flag.ContinueOnError)
	dev := fs.String("device", "", "serial device of the bridge")
	dryrun := fs.Bool("n", false, "dry run; print the commands instead of sending them")
	check := fs.Bool("check", true, "fail on target error replies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing command (ping, break, reset, send, recv, xfer)")
	}
	if *dryrun {
		rec := new(client.Recorder)
		if err := execute(stdout, rec, args, false); err != nil {
			return err
		}
		for _, c := range rec.Commands {
			fmt.Fprintf(stdout, "%q\n", c)
		}
		return nil
	}
	s, err := client.Open(*dev)
	if err != nil {
		return err
	}
	defer s.Close()
	c := client.New(s)
	if err := c.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return execute(stdout, c, args, *check)
}

func execute(stdout io.Writer, c client.Interface, args []string, check bool) error {
	cmd, args := args[0], args[1:]
	words, err := parseWords(args)
	if err != nil {
		return err
	}
	nargs := func(n int) error {
		if len(words) != n {
			return fmt.Errorf("%s: %d arguments, want %d", cmd, len(words), n)
		}
		return nil
	}
	printPacket := func(pkt bdm.Packet) error {
		fmt.Fprintln(stdout, pkt)
		if check {
			return client.Check(pkt)
		}
		return nil
	}
	switch cmd {
	case "ping":
		if err := nargs(0); err != nil {
			return err
		}
		return c.Ping()
	case "break", "reset":
		if err := nargs(0); err != nil {
			return err
		}
		return c.EnterDebugMode(cmd == "reset")
	case "send":
		if err := nargs(1); err != nil {
			return err
		}
		return c.Send(words[0])
	case "recv":
		if err := nargs(0); err != nil {
			return err
		}
		pkt, err := c.Receive()
		if err != nil {
			return err
		}
		return printPacket(pkt)
	case "xfer":
		if len(words) == 0 {
			return errors.New("xfer: missing words")
		}
		for _, w := range words {
			pkt, err := c.Exchange(w)
			if err != nil {
				return err
			}
			if err := printPacket(pkt); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func parseWords(args []string) ([]uint16, error) {
	var words []uint16
	for _, a := range args {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(a), "0x"), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid word %q: %w", a, err)
		}
		words = append(words, uint16(v))
	}
	return words, nil
}
