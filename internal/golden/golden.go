// package golden compares pin traces against golden files.
package golden

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"periph.io/x/conn/v3/gpio"

	"cfbdm.org/bdm"
)

// CompareTrace compares the textual form of events with the golden
// file at path. If update is set, the golden file is rewritten
// instead. If dumpDir is not empty, the trace is also written as a
// VCD waveform for inspection in a waveform viewer.
func CompareTrace(path string, update bool, dumpDir string, events []bdm.Event) error {
	bpath := filepath.Base(path)
	if dumpDir != "" {
		fpath := filepath.Join(dumpDir, bpath+".vcd")
		if err := dumpVCD(fpath, events); err != nil {
			return err
		}
	}
	enc := encodeTrace(events)
	if update {
		return os.WriteFile(path, enc, 0o640)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	got := strings.Split(strings.TrimRight(string(enc), "\n"), "\n")
	golden := strings.Split(strings.TrimRight(string(want), "\n"), "\n")
	mismatches := 0
	first := -1
	for i := range min(len(got), len(golden)) {
		if strings.TrimSpace(got[i]) != strings.TrimSpace(golden[i]) {
			if first == -1 {
				first = i
			}
			mismatches++
		}
	}
	if mismatches > 0 || len(got) != len(golden) {
		msg := fmt.Sprintf("%s: trace lengths %d, %d, with %d/%d event mismatches", path, len(got), len(golden), mismatches, len(golden))
		if first != -1 {
			msg += fmt.Sprintf("\nfirst mismatch at line %d:\ngot:  %s\nwant: %s", first+1, got[first], golden[first])
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// encodeTrace encodes events one per line.
func encodeTrace(events []bdm.Event) []byte {
	buf := new(bytes.Buffer)
	for _, e := range events {
		fmt.Fprintln(buf, e.String())
	}
	return buf.Bytes()
}

// WriteVCD writes events as a Value Change Dump. Released lines are
// shown as 'z'.
func WriteVCD(f io.Writer, events []bdm.Event) error {
	out := bufio.NewWriter(f)
	roles := []bdm.Role{bdm.Clock, bdm.DataOut, bdm.DataIn, bdm.Breakpoint, bdm.Reset}
	ident := func(r bdm.Role) byte {
		return '!' + byte(r)
	}
	fmt.Fprintln(out, "$timescale 1ns $end")
	fmt.Fprintln(out, "$scope module bdm $end")
	for _, r := range roles {
		fmt.Fprintf(out, "$var wire 1 %c %s $end\n", ident(r), r)
	}
	fmt.Fprintln(out, "$upscope $end")
	fmt.Fprintln(out, "$enddefinitions $end")

	type state struct {
		dir   bdm.Direction
		level gpio.Level
	}
	states := make(map[bdm.Role]state)
	value := func(s state) byte {
		switch {
		case s.dir == bdm.Input:
			return 'z'
		case s.level == gpio.High:
			return '1'
		default:
			return '0'
		}
	}
	last := int64(-1)
	for _, e := range events {
		s := states[e.Role]
		switch e.Op {
		case bdm.OpConfigure:
			s.dir = e.Dir
		case bdm.OpWrite:
			s.level = e.Level
		}
		states[e.Role] = s
		if t := e.At.Nanoseconds(); t != last {
			fmt.Fprintf(out, "#%d\n", t)
			last = t
		}
		fmt.Fprintf(out, "%c%c\n", value(s), ident(e.Role))
	}
	return out.Flush()
}

func dumpVCD(f string, events []bdm.Event) error {
	buf := new(bytes.Buffer)
	if err := WriteVCD(buf, events); err != nil {
		return err
	}
	return os.WriteFile(f, buf.Bytes(), 0o640)
}
