package model

import (
	"net"
	"strconv"
)

// Target is a resolved service address. Port is always in 1..65535.
type Target struct {
	Host string
	Port uint16
}

// String returns the friendly host:port name used in all messages.
// IPv6 hosts are printed without brackets.
func (t Target) String() string {
	return t.Host + ":" + strconv.Itoa(int(t.Port))
}

// Addr returns an address suitable for net.Dial.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// Mode selects how the services are waited for.
type Mode int

const (
	ModeSerial Mode = iota
	ModeParallel
)

func (m Mode) String() string {
	switch m {
	case ModeSerial:
		return "serial"
	case ModeParallel:
		return "parallel"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Outcome of a single wait job. It only ever moves away from OutcomePending.
type Outcome int32

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeTimedOut:
		return "timed out"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}
