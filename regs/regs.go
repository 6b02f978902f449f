// Package regs provides primitive access to a trace component's
// memory-mapped register block: the software lock, paired 64-bit
// registers, the authentication status check and bounded polling.
//
// A nil Block stands for an unmapped component. Every helper in this
// package treats it as a no-op so callers do not need to special-case
// components whose registers are absent.
package regs

// Management register offsets common to every trace component.
const (
	ITCTRL     uint32 = 0xf00
	CLAIMSET   uint32 = 0xfa0
	CLAIMCLR   uint32 = 0xfa4
	LAR        uint32 = 0xfb0
	LSR        uint32 = 0xfb4
	AUTHSTATUS uint32 = 0xfb8
	DEVID      uint32 = 0xfc8
	DEVTYPE    uint32 = 0xfcc
)

// UnlockKey is written to LAR to allow writes to the other registers.
const UnlockKey uint32 = 0xc5acce55

// LSR bits.
const (
	LSRImplemented uint32 = 1 << 0
	LSRLocked      uint32 = 1 << 1
)

// BlockSize is the size of one component's register window.
const BlockSize = 4096

// NoOffset marks the absent upper half of a register pair.
const NoOffset int32 = -1

// authDisabled is the AUTHSTATUS field encoding for "implemented and
// disabled".
const authDisabled = 0x2

// Block is a component's 32-bit register window.
type Block interface {
	Read32(off uint32) uint32
	Write32(off uint32, val uint32)
}

// Fencer is implemented by blocks that need an explicit memory barrier
// to order register writes.
type Fencer interface {
	Fence()
}

func fence(b Block) {
	if f, ok := b.(Fencer); ok {
		f.Fence()
	}
}

// Lock re-locks the component. All prior writes are made visible before
// the lock takes effect.
func Lock(b Block) {
	if b == nil {
		return
	}
	fence(b)
	b.Write32(LAR, 0)
}

// Unlock opens the component for writes. The unlock is made visible
// before any subsequent write.
func Unlock(b Block) {
	if b == nil {
		return
	}
	b.Write32(LAR, UnlockKey)
	fence(b)
}

// IsLocked reports whether the software lock is implemented and engaged.
func IsLocked(b Block) bool {
	if b == nil {
		return false
	}
	lsr := b.Read32(LSR)
	return lsr&LSRImplemented != 0 && lsr&LSRLocked != 0
}

// ReadPair reads two 32-bit registers as one 64-bit value. When hi is
// NoOffset the upper half reads as zero.
func ReadPair(b Block, lo, hi int32) uint64 {
	if b == nil {
		return 0
	}
	val := uint64(b.Read32(uint32(lo)))
	if hi >= 0 {
		val |= uint64(b.Read32(uint32(hi))) << 32
	}
	return val
}

// WritePair writes a 64-bit value across two 32-bit registers. When hi
// is NoOffset only the lower half is written.
func WritePair(b Block, val uint64, lo, hi int32) {
	if b == nil {
		return
	}
	b.Write32(uint32(lo), uint32(val))
	if hi >= 0 {
		b.Write32(uint32(hi), uint32(val>>32))
	}
}

// IsTraceBlocked decodes AUTHSTATUS and reports whether any of the four
// debug/trace permission fields reads as disabled. An unmapped block is
// never blocked.
func IsTraceBlocked(b Block) bool {
	if b == nil {
		return false
	}
	auth := b.Read32(AUTHSTATUS)
	for shift := 0; shift < 8; shift += 2 {
		if (auth>>shift)&0x3 == authDisabled {
			return true
		}
	}
	return false
}
