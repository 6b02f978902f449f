package tracefabric

// BarrierPacket is the marker written into a sink's data stream to force
// buffered trace out and give decoders a synchronisation point.
var BarrierPacket = [5]uint32{0x7fffffff, 0x7fffffff, 0x7fffffff, 0x7fffffff, 0x0}

// Barrier returns a copy of BarrierPacket as a slice.
func Barrier() []uint32 {
	out := make([]uint32, len(BarrierPacket))
	copy(out, BarrierPacket[:])
	return out
}
