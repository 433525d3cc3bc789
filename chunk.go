package memalloc

// ChunkSource supplies fresh memory to a growing allocator. Acquire returns
// the arena offset of n contiguous bytes or ErrNoSpace, it never retries.
type ChunkSource interface {
	Acquire(n uint64) (offset uint64, err error)
	// Remaining bytes Acquire can still hand out.
	Remaining() uint64
}

// bumpSource hands out the untouched tail of the arena in address order.
// Its cursor lives in the arena metadata so the allocator keeps no state
// outside the arena.
type bumpSource struct {
	mem arena
}

func newBumpSource(mem arena) *bumpSource {
	mem.put64(metaUsed, listMetaSize)
	return &bumpSource{mem: mem}
}

func (b *bumpSource) Acquire(n uint64) (offset uint64, err error) {
	if n > b.Remaining() {
		return 0, ErrNoSpace
	}
	offset = b.used()
	b.mem.put64(metaUsed, offset+n)
	return offset, nil
}

func (b *bumpSource) Remaining() uint64 {
	return uint64(len(b.mem)) - b.used()
}

func (b *bumpSource) used() uint64 {
	return b.mem.u64(metaUsed)
}
