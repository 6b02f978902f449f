package tracefabric

import "fmt"

// ErrNoRoute is returned when no wiring connects the source to an
// eligible sink.
type ErrNoRoute struct {
	Source DeviceID
	Sink   DeviceID
}

func (e ErrNoRoute) Error() string {
	if e.Sink == "" {
		return fmt.Sprintf("no route from %s to any available sink", e.Source)
	}
	return fmt.Sprintf("no route from %s to %s", e.Source, e.Sink)
}

// ErrSinkUnavailable is returned when the target sink is held under an
// incompatible mode.
type ErrSinkUnavailable struct {
	Sink DeviceID
	Mode Mode
}

func (e ErrSinkUnavailable) Error() string {
	return fmt.Sprintf("sink %s unavailable: enabled in %s mode", e.Sink, e.Mode)
}

// ErrDeviceBusy is returned when activation finds a device owned by
// another agent, mode or route.
type ErrDeviceBusy struct {
	Device DeviceID
	Reason string
	Err    error
}

func (e ErrDeviceBusy) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("device %s busy", e.Device)
	}
	return fmt.Sprintf("device %s busy: %s", e.Device, e.Reason)
}

func (e ErrDeviceBusy) Unwrap() error { return e.Err }

// ErrTimeout is returned when a hardware register did not reach the
// expected state within the poll bound.
type ErrTimeout struct {
	Device DeviceID
	Offset uint32
	Mask   uint32
	Want   uint32
}

func (e ErrTimeout) Error() string {
	dev := string(e.Device)
	if dev == "" {
		dev = "device"
	}
	return fmt.Sprintf("%s: timeout waiting for register 0x%03x & 0x%08x == 0x%08x", dev, e.Offset, e.Mask, e.Want)
}

// ErrNotOwner is returned when a release is attempted by an agent that
// does not hold the claim.
type ErrNotOwner struct {
	Device DeviceID
	Agent  AgentID
	Owner  AgentID
}

func (e ErrNotOwner) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("device %s: agent %q does not hold the claim (device is free)", e.Device, e.Agent)
	}
	return fmt.Sprintf("device %s: agent %q does not hold the claim (owner %q)", e.Device, e.Agent, e.Owner)
}

// ErrAlreadyClaimed is returned by the arbiter when the claim tag is
// held by someone else, including an external debugger.
type ErrAlreadyClaimed struct {
	Device DeviceID
	Owner  AgentID
}

func (e ErrAlreadyClaimed) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("device %s already claimed by an external agent", e.Device)
	}
	return fmt.Sprintf("device %s already claimed by %q", e.Device, e.Owner)
}

// ErrUnsupported is returned when an optional hardware feature is absent.
type ErrUnsupported struct {
	Feature string
}

func (e ErrUnsupported) Error() string {
	return fmt.Sprintf("%s not supported", e.Feature)
}

// ErrDeviceNotFound is returned when a device ID is not in the topology.
type ErrDeviceNotFound struct {
	Device DeviceID
}

func (e ErrDeviceNotFound) Error() string {
	return fmt.Sprintf("device %s does not exist", e.Device)
}

// ErrTraceBlocked is returned when a source's authentication status
// forbids tracing.
type ErrTraceBlocked struct {
	Device DeviceID
}

func (e ErrTraceBlocked) Error() string {
	return fmt.Sprintf("device %s: tracing disabled by authentication status", e.Device)
}

// ErrPathState is returned when a path operation does not match the
// path's lifecycle (enabling twice, using a released path).
type ErrPathState struct {
	Path   string
	Reason string
}

func (e ErrPathState) Error() string {
	return fmt.Sprintf("path %s: %s", e.Path, e.Reason)
}
