// Package tracefabric holds the domain types shared by the trace fabric
// path engine: device identity, component kinds, usage modes and the
// error taxonomy returned by every layer.
package tracefabric

import (
	"fmt"
	"strings"
)

// DeviceID uniquely identifies a trace component in the topology.
type DeviceID string

// AgentID identifies the software agent that owns a claim.
type AgentID string

// Kind is the role a device plays in the trace fabric.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSource
	KindLink
	KindSink
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindLink:
		return "link"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source":
		return KindSource, nil
	case "link":
		return KindLink, nil
	case "sink":
		return KindSink, nil
	default:
		return KindUnknown, fmt.Errorf("unknown device kind: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Mode is the usage mode a device is currently enabled under. A device
// enabled in one mode refuses activation in the other until it returns
// to ModeDisabled.
type Mode uint8

const (
	ModeDisabled Mode = iota
	ModeSysfs
	ModePerf
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeSysfs:
		return "sysfs"
	case ModePerf:
		return "perf"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// ParseMode parses a mode name (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "":
		return ModeDisabled, nil
	case "sysfs":
		return ModeSysfs, nil
	case "perf":
		return ModePerf, nil
	default:
		return ModeDisabled, fmt.Errorf("unknown mode: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Compatible reports whether a device currently in mode m can accept an
// activation under want.
func (m Mode) Compatible(want Mode) bool {
	return m == ModeDisabled || m == want
}

// DefaultAgent returns the agent used when a caller does not name one.
// All sysfs users share a single agent so their enables stack.
func DefaultAgent(mode Mode) AgentID {
	return AgentID(mode.String())
}

// NoPort marks the absent input of a source or output of a sink.
const NoPort = -1

// Hop is one device on a path together with the ports the path enters
// and leaves it by.
type Hop struct {
	Device  DeviceID `json:"device" cbor:"1,keyasint"`
	InPort  int      `json:"in_port" cbor:"2,keyasint"`
	OutPort int      `json:"out_port" cbor:"3,keyasint"`
}
