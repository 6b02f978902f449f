package compute

import (
	"fmt"

	"github.com/frobware/go-tracefabric"
)

// Admission is the decision for one device when a path is enabled.
type Admission int

const (
	// AdmitClaim means the device is free and must be claimed and
	// programmed.
	AdmitClaim Admission = iota
	// AdmitShare means the device is already enabled for an identical
	// use; its reference count is raised and it is not reprogrammed.
	AdmitShare
	// AdmitBusy means the device is in use in a way that conflicts.
	AdmitBusy
)

func (a Admission) String() string {
	switch a {
	case AdmitClaim:
		return "claim"
	case AdmitShare:
		return "share"
	case AdmitBusy:
		return "busy"
	default:
		return fmt.Sprintf("Admission(%d)", int(a))
	}
}

// Admit decides how hop can join an activation under mode for agent,
// given the device's current state. The reason is empty unless the
// decision is AdmitBusy.
func Admit(st DeviceState, kind tracefabric.Kind, hop tracefabric.Hop, mode tracefabric.Mode, agent tracefabric.AgentID) (Admission, string) {
	switch {
	case st.Pending:
		return AdmitBusy, "activation in progress"
	case !st.Active():
		return AdmitClaim, ""
	case st.Mode != mode:
		return AdmitBusy, fmt.Sprintf("enabled in %s mode", st.Mode)
	case st.Agent != agent:
		return AdmitBusy, fmt.Sprintf("owned by agent %q", st.Agent)
	case kind == tracefabric.KindSource && mode == tracefabric.ModePerf:
		return AdmitBusy, "source already tracing for perf"
	case st.InPort != hop.InPort:
		return AdmitBusy, fmt.Sprintf("input port %d in use by another path", st.InPort)
	case st.OutPort != hop.OutPort:
		return AdmitBusy, fmt.Sprintf("output port %d in use by another path", st.OutPort)
	default:
		return AdmitShare, ""
	}
}
