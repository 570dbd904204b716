package client

import (
	"cfbdm.org/bdm"
	"cfbdm.org/bridge"
)

// Recorder is a dry-run Interface that records the commands it would
// send. Received packets report an illegal command.
type Recorder struct {
	Commands [][]byte
}

func (r *Recorder) Ping() error {
	r.record(bridge.CmdPing)
	return nil
}

func (r *Recorder) EnterDebugMode(reset bool) error {
	if reset {
		r.record(bridge.CmdReset)
	} else {
		r.record(bridge.CmdBreakpoint)
	}
	return nil
}

func (r *Recorder) Send(data uint16) error {
	r.record(bridge.CmdSend, byte(data>>8), byte(data))
	return nil
}

func (r *Recorder) Receive() (bdm.Packet, error) {
	r.record(bridge.CmdReceive)
	return bdm.Packet{Data: 0xffff}, nil
}

func (r *Recorder) Exchange(data uint16) (bdm.Packet, error) {
	r.record(bridge.CmdSendReceive, byte(data>>8), byte(data))
	return bdm.Packet{Data: 0xffff}, nil
}

func (r *Recorder) record(cmd ...byte) {
	r.Commands = append(r.Commands, cmd)
}
