package regs

import "sync"

// DefaultClaimTags is the set of claim tag bits a simulated component
// implements.
const DefaultClaimTags uint32 = 0xf

// Op records one register access on a SimBlock.
type Op struct {
	Write bool
	Off   uint32
	Val   uint32
	// Dropped is set for writes ignored because the block was locked.
	Dropped bool
}

// SimBlock is an in-memory register window that emulates the software
// lock and the claim tag registers. Writes other than to LAR are
// dropped while the block is locked, as on hardware.
type SimBlock struct {
	mu        sync.Mutex
	regs      map[uint32]uint32
	locked    bool
	claimTags uint32
	claimed   uint32
	ops       []Op
	fences    int

	// OnRead, if set, may override the value returned for off.
	OnRead func(off, val uint32) uint32
	// OnWrite, if set, is called for every accepted write after it
	// has been applied.
	OnWrite func(off, val uint32)
}

// NewSimBlock returns a locked SimBlock implementing DefaultClaimTags.
func NewSimBlock() *SimBlock {
	return &SimBlock{
		regs:      make(map[uint32]uint32),
		locked:    true,
		claimTags: DefaultClaimTags,
	}
}

// Read32 implements Block.
func (s *SimBlock) Read32(off uint32) uint32 {
	s.mu.Lock()
	val := s.readLocked(off)
	s.ops = append(s.ops, Op{Off: off, Val: val})
	hook := s.OnRead
	s.mu.Unlock()

	if hook != nil {
		val = hook(off, val)
	}
	return val
}

func (s *SimBlock) readLocked(off uint32) uint32 {
	switch off {
	case LSR:
		lsr := LSRImplemented
		if s.locked {
			lsr |= LSRLocked
		}
		return lsr
	case CLAIMSET:
		return s.claimTags
	case CLAIMCLR:
		return s.claimed
	case LAR:
		return 0
	default:
		return s.regs[off]
	}
}

// Write32 implements Block.
func (s *SimBlock) Write32(off, val uint32) {
	s.mu.Lock()
	if off == LAR {
		s.locked = val != UnlockKey
		s.ops = append(s.ops, Op{Write: true, Off: off, Val: val})
		s.mu.Unlock()
		return
	}
	if s.locked {
		s.ops = append(s.ops, Op{Write: true, Off: off, Val: val, Dropped: true})
		s.mu.Unlock()
		return
	}
	switch off {
	case CLAIMSET:
		s.claimed |= val & s.claimTags
	case CLAIMCLR:
		s.claimed &^= val
	default:
		s.regs[off] = val
	}
	s.ops = append(s.ops, Op{Write: true, Off: off, Val: val})
	hook := s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		hook(off, val)
	}
}

// Fence implements Fencer.
func (s *SimBlock) Fence() {
	s.mu.Lock()
	s.fences++
	s.mu.Unlock()
}

// Set stores a register value directly, bypassing the lock. Claim
// registers written through Set replace the claim state outright.
func (s *SimBlock) Set(off, val uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch off {
	case CLAIMSET:
		s.claimTags = val
	case CLAIMCLR:
		s.claimed = val
	case LSR:
		s.locked = val&LSRLocked != 0
	default:
		s.regs[off] = val
	}
}

// Get returns the stored value of off without recording an access.
func (s *SimBlock) Get(off uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(off)
}

// Locked reports the state of the software lock.
func (s *SimBlock) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Ops returns a copy of the access log.
func (s *SimBlock) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// Writes returns the accepted writes to off, in order.
func (s *SimBlock) Writes(off uint32) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint32
	for _, op := range s.ops {
		if op.Write && !op.Dropped && op.Off == off {
			out = append(out, op.Val)
		}
	}
	return out
}

// DroppedWrites counts writes ignored while locked.
func (s *SimBlock) DroppedWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if op.Dropped {
			n++
		}
	}
	return n
}

// Fences returns how many fences have been issued.
func (s *SimBlock) Fences() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fences
}

// ResetOps clears the access log.
func (s *SimBlock) ResetOps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
	s.fences = 0
}
