package driver

import (
	"github.com/frobware/go-tracefabric/regs"
)

// Device type identifiers reported in DEVTYPE.
const (
	devTypeETM        = 0x13
	devTypeFunnel     = 0x12
	devTypeReplicator = 0x22
	devTypeTMC        = 0x21
)

// Simulate seeds b with the reset state of a device of type typ and
// installs hooks that model its status bits, so the reference drivers
// run against it without timing out.
func Simulate(typ string, b *regs.SimBlock) {
	switch typ {
	case "etm":
		b.Set(regs.DEVTYPE, devTypeETM)
		b.Set(TRCSTATR, trcStatIdle)
		b.OnWrite = func(off, val uint32) {
			if off != TRCPRGCTLR {
				return
			}
			if val&trcPrgEnable != 0 {
				b.Set(TRCSTATR, 0)
			} else {
				b.Set(TRCSTATR, trcStatIdle)
			}
		}
	case "funnel":
		b.Set(regs.DEVTYPE, devTypeFunnel)
	case "replicator":
		b.Set(regs.DEVTYPE, devTypeReplicator)
		b.Set(IDFILTER0, filterBlock)
		b.Set(IDFILTER1, filterBlock)
	case "tmc":
		b.Set(regs.DEVTYPE, devTypeTMC)
		b.Set(TMCSTS, tmcStsReady)
		b.Set(TMCRSZ, 0x1000)
		b.OnWrite = func(off, val uint32) {
			if off != TMCCTL {
				return
			}
			if val&tmcCtlCaptureEn != 0 {
				b.Set(TMCSTS, 0)
			} else {
				b.Set(TMCSTS, tmcStsReady)
			}
		}
	}
}
