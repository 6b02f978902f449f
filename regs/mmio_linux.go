//go:build linux

package regs

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MMIO is a register window mapped from physical memory.
type MMIO struct {
	mem  []byte
	base uint64
}

// Map maps size bytes of physical memory at base through devmem
// (normally /dev/mem).
func Map(devmem string, base uint64, size int) (*MMIO, error) {
	if size <= 0 {
		size = BlockSize
	}
	f, err := os.OpenFile(devmem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devmem, err)
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), int64(base), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s at 0x%x: %w", devmem, base, err)
	}
	return &MMIO{mem: mem, base: base}, nil
}

func (m *MMIO) word(off uint32) *uint32 {
	if off%4 != 0 || int(off)+4 > len(m.mem) {
		panic(fmt.Sprintf("regs: offset 0x%x outside window at 0x%x", off, m.base))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[off]))
}

// Read32 implements Block.
func (m *MMIO) Read32(off uint32) uint32 {
	return atomic.LoadUint32(m.word(off))
}

// Write32 implements Block.
func (m *MMIO) Write32(off, val uint32) {
	atomic.StoreUint32(m.word(off), val)
}

// Fence implements Fencer. Atomic accesses are already sequentially
// consistent, so this only stops the compiler reordering around it.
func (m *MMIO) Fence() {
	atomic.LoadUint32(m.word(LSR))
}

// Base returns the physical address of the window.
func (m *MMIO) Base() uint64 { return m.base }

// Close unmaps the window.
func (m *MMIO) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}
