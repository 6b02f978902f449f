package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/frobware/go-tracefabric"
	csrpkg "github.com/frobware/go-tracefabric/csr"
	"github.com/frobware/go-tracefabric/lock"
)

// CSRCmd drives the coresight control and status register blocks.
type CSRCmd struct {
	List        CSRListCmd        `cmd:"" default:"withargs" help:"List configured CSR blocks."`
	HWCtrl      CSRHWCtrlCmd      `cmd:"" name:"hwctrl" help:"Write a hardware control register by absolute address."`
	ByteCounter CSRByteCounterCmd `cmd:"" name:"byte-counter" help:"Set the byte counter interrupt threshold."`
	USB         CSRUSBCmd         `cmd:"" name:"usb" help:"Route trace to the USB bridge (on/off)."`
	Flush       CSRFlushCmd       `cmd:"" help:"Enable or disable periodic USB flush (on/off)."`
}

// CSRListCmd lists CSR blocks.
type CSRListCmd struct{}

// Run executes the csr list command.
func (c *CSRListCmd) Run(cli *CLI, ctx context.Context) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	reg, ok := rt.Manager.CSR().(*csrpkg.Registry)
	if !ok || len(reg.Names()) == 0 {
		return cli.PrintOut("No CSR blocks configured\n")
	}
	var b strings.Builder
	for _, name := range reg.Names() {
		c, err := reg.Find(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%-16s 0x%x\n", c.Name, c.Base)
	}
	return cli.PrintOut(b.String())
}

// withCSR runs fn against the named block under the writer lock.
func withCSR(ctx context.Context, cli *CLI, name string, fn func(*csrpkg.CSR) error) error {
	rt, err := cli.NewCLIRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	provider := rt.Manager.CSR()
	if !provider.Supported() {
		return tracefabric.ErrUnsupported{Feature: "csr"}
	}
	c, err := provider.Find(name)
	if err != nil {
		return err
	}
	return lock.Run(ctx, rt.Dirs.Lock(), func(context.Context, lock.WriterScope) error {
		return fn(c)
	})
}

// CSRHWCtrlCmd writes a hardware control register.
type CSRHWCtrlCmd struct {
	Name  string  `arg:"" help:"CSR block name."`
	Addr  Address `arg:"" help:"Absolute register address."`
	Value Address `arg:"" help:"Value to write."`
}

// Run executes the csr hwctrl command.
func (c *CSRHWCtrlCmd) Run(cli *CLI, ctx context.Context) error {
	if uint64(c.Value) > 0xffffffff {
		return fmt.Errorf("value %s does not fit in 32 bits", c.Value)
	}
	return withCSR(ctx, cli, c.Name, func(b *csrpkg.CSR) error {
		return csrpkg.SetHardwareControl(b, uint64(c.Addr), uint32(c.Value))
	})
}

// CSRByteCounterCmd sets the byte counter.
type CSRByteCounterCmd struct {
	Name  string `arg:"" help:"CSR block name."`
	Count uint32 `arg:"" help:"Byte count threshold."`
}

// Run executes the csr byte-counter command.
func (c *CSRByteCounterCmd) Run(cli *CLI, ctx context.Context) error {
	return withCSR(ctx, cli, c.Name, func(b *csrpkg.CSR) error {
		return csrpkg.SetByteCounter(b, c.Count)
	})
}

// CSRToggle selects a CSR block and an on/off state.
type CSRToggle struct {
	Name  string `arg:"" help:"CSR block name."`
	State string `arg:"" enum:"on,off" help:"on or off."`
}

func (t CSRToggle) pick(on, off func(*csrpkg.CSR) error) func(*csrpkg.CSR) error {
	if t.State == "on" {
		return on
	}
	return off
}

// CSRUSBCmd routes trace to the USB bridge.
type CSRUSBCmd struct {
	CSRToggle
}

// Run executes the csr usb command.
func (c *CSRUSBCmd) Run(cli *CLI, ctx context.Context) error {
	return withCSR(ctx, cli, c.Name, c.pick(csrpkg.EnableUSBBridge, csrpkg.DisableUSBBridge))
}

// CSRFlushCmd toggles periodic flush of the USB path.
type CSRFlushCmd struct {
	CSRToggle
}

// Run executes the csr flush command.
func (c *CSRFlushCmd) Run(cli *CLI, ctx context.Context) error {
	return withCSR(ctx, cli, c.Name, c.pick(csrpkg.EnableFlush, csrpkg.DisableFlush))
}
