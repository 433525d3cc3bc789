package memalloc

// Block header shared by the first-fit and best-fit allocators:
//
//	[0:8)  payload size, bit 0 set when the block is free
//	[8:16) offset of the next block header in the list, 0 ends it
//
// The payload starts right after the header. Sizes are multiples of the
// rounding granularity (>= 2), which keeps bit 0 available.
const (
	blockHeaderSize = 16
	blockFreeBit    = 1
)

func (a arena) blockSize(off uint64) uint64 {
	return a.u64(off) &^ blockFreeBit
}

func (a arena) blockFree(off uint64) bool {
	return a.u64(off)&blockFreeBit != 0
}

func (a arena) blockNext(off uint64) uint64 {
	return a.u64(off + 8)
}

// blockEnd is the offset right after the block's payload.
func (a arena) blockEnd(off uint64) uint64 {
	return off + blockHeaderSize + a.blockSize(off)
}

func (a arena) setBlock(off, size uint64, free bool, next uint64) {
	if free {
		size |= blockFreeBit
	}
	a.put64(off, size)
	a.put64(off+8, next)
}

func (a arena) setBlockSize(off, size uint64) {
	a.put64(off, size|a.u64(off)&blockFreeBit)
}

func (a arena) setBlockFree(off uint64, free bool) {
	size := a.blockSize(off)
	if free {
		size |= blockFreeBit
	}
	a.put64(off, size)
}

func (a arena) setBlockNext(off, next uint64) {
	a.put64(off+8, next)
}

// blockOf maps a payload pointer back to its header, ok is false when p
// cannot be a payload of a list allocator over a.
func (a arena) blockOf(p Ptr) (uint64, bool) {
	off := uint64(p)
	if off < listMetaSize+blockHeaderSize || off > uint64(len(a)) {
		return 0, false
	}
	return off - blockHeaderSize, true
}
