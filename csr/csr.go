// Package csr exposes the optional sideband control blocks that some
// sinks use for USB bridging and byte counting.
//
// The subsystem may be absent at runtime. Callers obtain a Provider and
// check Supported; the Absent provider fails every lookup with
// ErrUnsupported.
package csr

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/regs"
)

// CSR register offsets.
const (
	USBBAMCTRL  uint32 = 0x034
	USBFLSHCTRL uint32 = 0x038
	BYTECNTVAL  uint32 = 0x06c
)

const (
	bamEnable       uint32 = 1 << 2
	flushEnable     uint32 = 1 << 0
	flushPeriodMask uint32 = 0xffff << 2
	flushPeriod     uint32 = 0xffff << 2
)

// CSR is one named control block.
type CSR struct {
	Name string
	// Base is the physical address of the block, used to translate
	// absolute addresses in SetHardwareControl.
	Base uint64

	mu    sync.Mutex
	block regs.Block
}

// New returns a CSR backed by block.
func New(name string, base uint64, block regs.Block) *CSR {
	return &CSR{Name: name, Base: base, block: block}
}

// Provider looks up CSR blocks by name.
type Provider interface {
	Supported() bool
	Find(name string) (*CSR, error)
}

var errUnsupported = tracefabric.ErrUnsupported{Feature: "csr"}

// Absent is the Provider used when the subsystem is not present.
type Absent struct{}

// Supported implements Provider.
func (Absent) Supported() bool { return false }

// Find implements Provider.
func (Absent) Find(string) (*CSR, error) { return nil, errUnsupported }

// Registry is a Provider holding the CSR blocks found at discovery.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	csrs map[string]*CSR
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger.With("component", "csr"),
		csrs:   make(map[string]*CSR),
	}
}

// Add registers c under its name.
func (r *Registry) Add(c *CSR) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.csrs[c.Name] = c
	r.logger.Debug("csr registered", "name", c.Name, "base", fmt.Sprintf("0x%x", c.Base))
}

// Supported implements Provider.
func (r *Registry) Supported() bool { return true }

// Find implements Provider.
func (r *Registry) Find(name string) (*CSR, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.csrs[name]
	if !ok {
		return nil, fmt.Errorf("csr %q not found", name)
	}
	return c, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.csrs))
	for name := range r.csrs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *CSR) update(fn func(b regs.Block)) error {
	if c == nil {
		return errUnsupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.block == nil {
		return nil
	}
	regs.Unlock(c.block)
	fn(c.block)
	regs.Lock(c.block)
	return nil
}

// SetHardwareControl writes val to the register at the absolute
// address addr, which must fall inside the block.
func SetHardwareControl(c *CSR, addr uint64, val uint32) error {
	if c == nil {
		return errUnsupported
	}
	if addr < c.Base || addr-c.Base+4 > regs.BlockSize || (addr-c.Base)%4 != 0 {
		return fmt.Errorf("csr %s: address 0x%x outside block at 0x%x", c.Name, addr, c.Base)
	}
	off := uint32(addr - c.Base)
	return c.update(func(b regs.Block) { b.Write32(off, val) })
}

// SetByteCounter programs the byte counter interrupt threshold. Zero
// disables it.
func SetByteCounter(c *CSR, count uint32) error {
	return c.update(func(b regs.Block) { b.Write32(BYTECNTVAL, count) })
}

// EnableUSBBridge routes trace from the sink to the USB BAM.
func EnableUSBBridge(c *CSR) error {
	return c.update(func(b regs.Block) {
		b.Write32(USBBAMCTRL, b.Read32(USBBAMCTRL)|bamEnable)
	})
}

// DisableUSBBridge stops routing trace to the USB BAM.
func DisableUSBBridge(c *CSR) error {
	return c.update(func(b regs.Block) {
		b.Write32(USBBAMCTRL, b.Read32(USBBAMCTRL)&^bamEnable)
	})
}

// EnableFlush turns on periodic flushing of the USB path.
func EnableFlush(c *CSR) error {
	return c.update(func(b regs.Block) {
		val := b.Read32(USBFLSHCTRL)&^flushPeriodMask | flushPeriod | flushEnable
		b.Write32(USBFLSHCTRL, val)
	})
}

// DisableFlush turns off periodic flushing of the USB path.
func DisableFlush(c *CSR) error {
	return c.update(func(b regs.Block) {
		b.Write32(USBFLSHCTRL, b.Read32(USBFLSHCTRL)&^flushEnable)
	})
}
