package memalloc

import "encoding/binary"

// arena is the allocator's view of the host region. Every structure inside
// it is addressed by byte offset.
type arena []byte

func (a arena) u64(off uint64) uint64 {
	return binary.LittleEndian.Uint64(a[off : off+8])
}

func (a arena) put64(off, v uint64) {
	binary.LittleEndian.PutUint64(a[off:off+8], v)
}

// payload returns size bytes at p, or nil when the range leaves the arena.
func (a arena) payload(p Ptr, size uint64) []byte {
	off := uint64(p)
	if p == Nil || off > uint64(len(a)) || size > uint64(len(a))-off {
		return nil
	}
	return a[off : off+size : off+size]
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func alignDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}
