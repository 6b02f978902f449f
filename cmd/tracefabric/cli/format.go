package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"k8s.io/client-go/util/jsonpath"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/manager"
	"github.com/frobware/go-tracefabric/regs"
	"github.com/frobware/go-tracefabric/store"
	"github.com/frobware/go-tracefabric/topology"
)

// render formats v according to flags, using table for the table format.
func render(v any, flags *OutputFlags, table func() string) (string, error) {
	switch flags.Format() {
	case OutputFormatJSON:
		return formatJSON(v)
	case OutputFormatJSONPath:
		return formatJSONPath(v, flags.JSONPathExpr())
	default:
		return table(), nil
	}
}

func formatJSON(v any) (string, error) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(output) + "\n", nil
}

func formatJSONPath(v any, expr string) (string, error) {
	jp := jsonpath.New("output")
	if err := jp.Parse(expr); err != nil {
		return "", fmt.Errorf("invalid jsonpath expression %q: %w", expr, err)
	}

	// jsonpath walks generic values, not typed structs.
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}
	var data interface{}
	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return "", fmt.Errorf("failed to unmarshal: %w", err)
	}

	var buf bytes.Buffer
	if err := jp.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("jsonpath execution failed: %w", err)
	}
	return buf.String() + "\n", nil
}

// TopologyView is the rendered form of a topology.
type TopologyView struct {
	Devices     []topology.Node       `json:"devices"`
	Connections []topology.Connection `json:"connections"`
}

// NewTopologyView captures g for output.
func NewTopologyView(g *topology.Graph) TopologyView {
	return TopologyView{Devices: g.Nodes(), Connections: g.Connections()}
}

// FormatTopology formats a topology according to flags.
func FormatTopology(v TopologyView, flags *OutputFlags) (string, error) {
	return render(v, flags, func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "%-16s %-8s %-12s %s\n", "DEVICE", "KIND", "TYPE", "BASE")
		for _, n := range v.Devices {
			typ, base := n.Type, "-"
			if typ == "" {
				typ = "-"
			}
			if n.Base != 0 {
				base = fmt.Sprintf("0x%x", n.Base)
			}
			fmt.Fprintf(&b, "%-16s %-8s %-12s %s\n", n.ID, n.Kind, typ, base)
		}
		b.WriteString("\nCONNECTIONS\n")
		if len(v.Connections) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, c := range v.Connections {
			fmt.Fprintf(&b, "  %s\n", c)
		}
		return b.String()
	})
}

// PathView is the rendered form of a path.
type PathView struct {
	ID      string               `json:"id"`
	Source  tracefabric.DeviceID `json:"source"`
	Sink    tracefabric.DeviceID `json:"sink"`
	Mode    tracefabric.Mode     `json:"mode"`
	Agent   tracefabric.AgentID  `json:"agent"`
	Hops    []tracefabric.Hop    `json:"hops"`
	Enabled bool                 `json:"enabled"`
	Session string               `json:"session,omitempty"`
}

// NewPathView captures p for output.
func NewPathView(p *manager.Path) PathView {
	v := PathView{
		ID:      p.ID.String(),
		Source:  p.Source(),
		Sink:    p.Sink(),
		Mode:    p.Mode,
		Agent:   p.Agent,
		Hops:    p.Hops,
		Enabled: p.Enabled(),
	}
	if p.Enabled() {
		v.Session = p.Session().String()
	}
	return v
}

func formatPort(p int) string {
	if p == tracefabric.NoPort {
		return "-"
	}
	return fmt.Sprintf("%d", p)
}

// FormatPath formats a path according to flags.
func FormatPath(v PathView, flags *OutputFlags) (string, error) {
	return render(v, flags, func() string {
		var b strings.Builder
		state := "built"
		if v.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(&b, "PATH  %s  %s -> %s  %s  %s\n", v.ID, v.Source, v.Sink, v.Mode, state)
		fmt.Fprintf(&b, "  agent   %s\n", v.Agent)
		if v.Session != "" {
			fmt.Fprintf(&b, "  session %s\n", v.Session)
		}
		b.WriteString("\n  HOPS\n")
		fmt.Fprintf(&b, "  %-16s %-4s %s\n", "DEVICE", "IN", "OUT")
		for _, h := range v.Hops {
			fmt.Fprintf(&b, "  %-16s %-4s %s\n", h.Device, formatPort(h.InPort), formatPort(h.OutPort))
		}
		return b.String()
	})
}

// FormatStatus formats device status according to flags.
func FormatStatus(status []manager.DeviceStatus, enabledSink tracefabric.DeviceID, flags *OutputFlags) (string, error) {
	return render(status, flags, func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "%-16s %-8s %-8s %-5s %-8s %s\n", "DEVICE", "KIND", "MODE", "REFS", "PORTS", "OWNER")
		for _, s := range status {
			ports := "-"
			if s.Active() {
				ports = formatPort(s.InPort) + "/" + formatPort(s.OutPort)
			}
			mode := s.Mode.String()
			if s.Pending {
				mode += "*"
			}
			owner := string(s.Owner)
			if owner == "" {
				owner = "-"
			}
			if !s.Mapped {
				owner += " (unmapped)"
			}
			fmt.Fprintf(&b, "%-16s %-8s %-8s %-5d %-8s %s\n", s.ID, s.Kind, mode, s.Refs, ports, owner)
		}
		if enabledSink != "" {
			fmt.Fprintf(&b, "\nenabled sink: %s\n", enabledSink)
		}
		return b.String()
	})
}

// FormatRegisters formats a register dump according to flags.
func FormatRegisters(id tracefabric.DeviceID, values []regs.Value, flags *OutputFlags) (string, error) {
	return render(values, flags, func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "DEVICE  %s\n", id)
		for _, v := range values {
			fmt.Fprintf(&b, "  %-14s %s\n", v.Name, v.Text)
		}
		return b.String()
	})
}

func formatTime(t time.Time) string {
	return t.Local().Format(time.RFC3339)
}

// FormatSessionList formats ledger sessions according to flags.
func FormatSessionList(sessions []store.Session, flags *OutputFlags) (string, error) {
	return render(sessions, flags, func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "%-36s %-10s %-10s %-6s %-8s %s\n", "SESSION", "SOURCE", "SINK", "MODE", "STATUS", "ENABLED")
		for _, s := range sessions {
			fmt.Fprintf(&b, "%-36s %-10s %-10s %-6s %-8s %s\n",
				s.ID, s.Source, s.Sink, s.Mode, s.Status, formatTime(s.EnabledAt))
		}
		return b.String()
	})
}

// SessionDetail is a session together with its events.
type SessionDetail struct {
	store.Session
	Events []store.Event `json:"events"`
}

// FormatSessionDetail formats one session according to flags.
func FormatSessionDetail(d SessionDetail, flags *OutputFlags) (string, error) {
	return render(d, flags, func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "SESSION  %s  %s -> %s  %s  %s\n", d.ID, d.Source, d.Sink, d.Mode, d.Status)
		fmt.Fprintf(&b, "  agent    %s\n", d.Agent)
		fmt.Fprintf(&b, "  enabled  %s\n", formatTime(d.EnabledAt))
		if d.DisabledAt != nil {
			fmt.Fprintf(&b, "  disabled %s\n", formatTime(*d.DisabledAt))
		}
		if d.Error != "" {
			fmt.Fprintf(&b, "  error    %s\n", d.Error)
		}
		b.WriteString("\n  EVENTS\n")
		if len(d.Events) == 0 {
			b.WriteString("  (none)\n")
		}
		for _, e := range d.Events {
			line := fmt.Sprintf("  %-16s %-10s", e.Device, e.Action)
			if e.Error != "" {
				line += " " + e.Error
			}
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}
		return b.String()
	})
}
