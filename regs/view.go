package regs

import "fmt"

// Formatter renders a raw register value.
type Formatter func(uint64) string

// HexFormat renders a value as 0x-prefixed hex.
func HexFormat(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// View names a register, or a pair of registers read as one value.
type View struct {
	Name   string
	Lo     int32
	Hi     int32
	Format Formatter
}

// Reg32 returns a view of a single 32-bit register.
func Reg32(name string, off uint32) View {
	return View{Name: name, Lo: int32(off), Hi: NoOffset}
}

// Reg64 returns a view of a register pair.
func Reg64(name string, lo, hi uint32) View {
	return View{Name: name, Lo: int32(lo), Hi: int32(hi)}
}

// Read returns the raw value of the view.
func (v View) Read(b Block) uint64 {
	return ReadPair(b, v.Lo, v.Hi)
}

// Value is a rendered register.
type Value struct {
	Name string `json:"name"`
	Raw  uint64 `json:"raw"`
	Text string `json:"text"`
}

// Table is an ordered set of register views exposed to a presentation
// layer.
type Table []View

// Read renders every view in order.
func (t Table) Read(b Block) []Value {
	out := make([]Value, 0, len(t))
	for _, v := range t {
		raw := v.Read(b)
		format := v.Format
		if format == nil {
			format = HexFormat
		}
		out = append(out, Value{Name: v.Name, Raw: raw, Text: format(raw)})
	}
	return out
}

// Lookup finds a view by name.
func (t Table) Lookup(name string) (View, bool) {
	for _, v := range t {
		if v.Name == name {
			return v, true
		}
	}
	return View{}, false
}

// With returns a new table with extra views appended.
func (t Table) With(views ...View) Table {
	out := make(Table, 0, len(t)+len(views))
	out = append(out, t...)
	return append(out, views...)
}

// ManagementTable lists the registers every component implements.
var ManagementTable = Table{
	Reg32("itctrl", ITCTRL),
	Reg32("claimset", CLAIMSET),
	Reg32("claimclr", CLAIMCLR),
	Reg32("lsr", LSR),
	Reg32("authstatus", AUTHSTATUS),
	Reg32("devid", DEVID),
	Reg32("devtype", DEVTYPE),
}
