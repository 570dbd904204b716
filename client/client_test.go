package client

import (
	"io"
	"log"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfbdm.org/bdm"
	"cfbdm.org/bridge"
)

// startBridge serves a bridge to a simulated target over a loopback
// connection.
func startBridge(t *testing.T, sim *bdm.Simulator, banner bool) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	p := bdm.NewPort(sim, sim)
	require.NoError(t, p.Init())
	b := bridge.New(p, log.New(io.Discard, "", 0))
	b.Banner = banner

	done := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		done <- b.Serve(conn)
	}()
	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		<-done
	})
	return New(conn)
}

func TestSync(t *testing.T) {
	for _, banner := range []bool{false, true} {
		c := startBridge(t, bdm.NewSimulator(), banner)
		require.NoError(t, c.Sync(), "banner %v", banner)
		assert.NoError(t, c.Ping())
	}
}

func TestPackets(t *testing.T) {
	sim := bdm.NewSimulator()
	sim.Status = true
	c := startBridge(t, sim, false)

	require.NoError(t, c.Send(0x1234))
	pkt, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, bdm.Packet{Status: true, Data: 0x1234}, pkt)

	// The reply to the receive's zeros arrives with the next exchange.
	pkt, err = c.Exchange(0xbeef)
	require.NoError(t, err)
	assert.Equal(t, bdm.Packet{Status: true, Data: 0x0000}, pkt)
	pkt, err = c.Exchange(0x0001)
	require.NoError(t, err)
	assert.Equal(t, bdm.Packet{Status: true, Data: 0xbeef}, pkt)
}

func TestEnterDebugMode(t *testing.T) {
	c := startBridge(t, bdm.NewSimulator(), false)
	assert.NoError(t, c.EnterDebugMode(false))
	assert.NoError(t, c.EnterDebugMode(true))
}

type fakeStream struct {
	io.Reader
	written strings.Builder
}

func (f *fakeStream) Write(p []byte) (int, error) {
	return f.written.Write(p)
}

func TestProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		op    func(c *Client) error
		want  error
	}{
		{"bad pong", "PING", (*Client).Ping, ErrBadPong},
		{"ping without ack", "PONGN", (*Client).Ping, ErrNoAck},
		{"send without ack", "N", func(c *Client) error { return c.Send(1) }, ErrNoAck},
		{"bad status", "Q\x00\x00A", func(c *Client) error { _, err := c.Receive(); return err }, ErrBadStatus},
		{"timeout", "", func(c *Client) error { return c.EnterDebugMode(true) }, ErrTimeout},
		{"truncated packet", "Y\x00", func(c *Client) error { _, err := c.Exchange(1); return err }, ErrTimeout},
		{"no sync", strings.Repeat("x", maxSyncAttempts), (*Client).Sync, ErrNoSync},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := New(&fakeStream{Reader: strings.NewReader(test.reply)})
			assert.ErrorIs(t, test.op(c), test.want)
		})
	}
}

func TestWireFormat(t *testing.T) {
	s := &fakeStream{Reader: strings.NewReader("AY\x12\x34AN\xff\xfeA")}
	c := New(s)
	require.NoError(t, c.Send(0xa55a))
	pkt, err := c.Exchange(0x0102)
	require.NoError(t, err)
	assert.Equal(t, bdm.Packet{Status: true, Data: 0x1234}, pkt)
	pkt, err = c.Receive()
	require.NoError(t, err)
	assert.Equal(t, bdm.Packet{Status: false, Data: 0xfffe}, pkt)
	assert.Equal(t, "s\xa5\x5aS\x01\x02r", s.written.String())
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(bdm.Packet{Status: false, Data: 0xffff}))
	assert.NoError(t, Check(bdm.Packet{Status: true, Data: 0x0000}))
	assert.ErrorIs(t, Check(bdm.Packet{Status: true, Data: 0x0001}), ErrTargetError)
	assert.ErrorIs(t, Check(bdm.Packet{Status: true, Data: 0xffff}), ErrIllegalCommand)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var _ Interface = &r
	var _ Interface = (*Client)(nil)
	require.NoError(t, r.Ping())
	require.NoError(t, r.EnterDebugMode(true))
	require.NoError(t, r.EnterDebugMode(false))
	require.NoError(t, r.Send(0x1234))
	pkt, err := r.Exchange(0xabcd)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xffff), pkt.Data)
	_, err = r.Receive()
	require.NoError(t, err)
	want := [][]byte{
		[]byte("P"),
		[]byte("R"),
		[]byte("B"),
		[]byte("s\x12\x34"),
		[]byte("S\xab\xcd"),
		[]byte("r"),
	}
	assert.Equal(t, want, r.Commands)
}
