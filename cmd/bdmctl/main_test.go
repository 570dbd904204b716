package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cfbdm.org/bdm"
	"cfbdm.org/client"
)

func exec(t *testing.T, format string, args ...any) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	err := run(out, strings.Fields(fmt.Sprintf(format, args...)))
	return out.String(), err
}

func TestDryRun(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{"-n ping", "\"P\"\n"},
		{"-n break", "\"B\"\n"},
		{"-n reset", "\"R\"\n"},
		{"-n send 0x1234", "\"s\\x124\"\n"},
		{"-n recv", "0:0xffff\n\"r\"\n"},
		{"-n xfer 2980 0x0000", "0:0xffff\n0:0xffff\n\"S)\\x80\"\n\"S\\x00\\x00\"\n"},
	}
	for _, test := range tests {
		out, err := exec(t, "%s", test.args)
		if err != nil {
			t.Errorf("%s: %v", test.args, err)
			continue
		}
		if out != test.want {
			t.Errorf("%s: got %q, want %q", test.args, out, test.want)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	for _, args := range []string{
		"",
		"-n",
		"-n send",
		"-n send 1 2",
		"-n send 10000",
		"-n send xyz",
		"-n xfer",
		"-n ping 1",
		"-n jump",
	} {
		if _, err := exec(t, "%s", args); err == nil {
			t.Errorf("%q: no error", args)
		}
	}
}

// errorTarget replies to every packet with a target error.
type errorTarget struct {
	client.Recorder
}

func (e *errorTarget) Receive() (bdm.Packet, error) {
	return bdm.Packet{Status: true, Data: 0x0001}, nil
}

func TestCheck(t *testing.T) {
	out := new(bytes.Buffer)
	err := execute(out, new(errorTarget), []string{"recv"}, true)
	if !errors.Is(err, client.ErrTargetError) {
		t.Errorf("recv returned %v, want %v", err, client.ErrTargetError)
	}
	if got := out.String(); got != "1:0x0001\n" {
		t.Errorf("recv printed %q", got)
	}
	out.Reset()
	if err := execute(out, new(errorTarget), []string{"recv"}, false); err != nil {
		t.Errorf("recv without check returned %v", err)
	}
}
