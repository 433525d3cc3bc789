package memalloc

import (
	"errors"
	"fmt"
)

// FirstFit keeps every block, used or free, on one list in the order the
// blocks were acquired. Alloc takes the first free block that fits and
// only grows the arena when none does.
type FirstFit struct {
	mem    arena
	config *Config
	source ChunkSource
	stats  Stats
}

// NewFirstFit grows into the unused tail of mem.
func NewFirstFit(mem []byte, c *Config) (*FirstFit, error) {
	return NewFirstFitWithSource(mem, c, nil)
}

// NewFirstFitWithSource grows by acquiring chunks from src. src must hand
// out offsets inside mem past the allocator metadata. A nil src bumps
// through the unused tail of mem.
func NewFirstFitWithSource(mem []byte, c *Config, src ChunkSource) (*FirstFit, error) {
	config := mergeConfig(c)
	if err := config.validate(); err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, ErrNilMemory
	}
	if uint64(len(mem)) < FirstFitMinSize(config) {
		return nil, ErrMemoryTooSmall
	}

	a := arena(mem)
	a.initMeta(magicFirstFit, listMetaSize)
	if src == nil {
		src = newBumpSource(a)
	}
	return &FirstFit{mem: a, config: config, source: src}, nil
}

// FirstFitMinSize is the smallest arena NewFirstFit accepts.
func FirstFitMinSize(c *Config) uint64 {
	return listMetaSize + blockHeaderSize + mergeConfig(c).Alignment
}

func (f *FirstFit) Alloc(size uint64) (Ptr, error) {
	if err := f.mem.checkMeta(magicFirstFit); err != nil {
		return Nil, err
	}
	if size == 0 {
		return Nil, ErrZeroSize
	}
	if size > uint64(len(f.mem)) {
		return Nil, ErrNoSpace
	}
	size = alignUp(size, f.config.Alignment)

	var tail uint64
	for off := f.mem.u64(metaHead); off != 0; off = f.mem.blockNext(off) {
		if f.mem.blockFree(off) && f.mem.blockSize(off) >= size {
			f.mem.setBlockFree(off, false)
			f.split(off, size)
			f.stats.Allocs++
			return Ptr(off + blockHeaderSize), nil
		}
		tail = off
	}

	off, err := f.source.Acquire(size + blockHeaderSize)
	if err != nil {
		f.config.Logger.Debug("first-fit: source refused chunk",
			"size", size, "remaining", f.source.Remaining(), "err", err)
		if !errors.Is(err, ErrNoSpace) {
			err = fmt.Errorf("%w: %v", ErrNoSpace, err)
		}
		return Nil, err
	}
	f.mem.setBlock(off, size, false, 0)
	if tail == 0 {
		f.mem.put64(metaHead, off)
	} else {
		f.mem.setBlockNext(tail, off)
	}
	f.stats.Grows++
	f.stats.Allocs++
	return Ptr(off + blockHeaderSize), nil
}

// split carves the tail of the block at off into a new free block when at
// least a header plus one alignment unit would be left over.
func (f *FirstFit) split(off, size uint64) {
	have := f.mem.blockSize(off)
	if have < size+blockHeaderSize+f.config.Alignment {
		return
	}
	rest := off + blockHeaderSize + size
	f.mem.setBlock(rest, have-size-blockHeaderSize, true, f.mem.blockNext(off))
	f.mem.setBlockSize(off, size)
	f.mem.setBlockNext(off, rest)
	f.stats.Splits++
}

func (f *FirstFit) Free(p Ptr) {
	if p == Nil || f.mem.checkMeta(magicFirstFit) != nil {
		return
	}
	off, ok := f.mem.blockOf(p)
	if !ok {
		return
	}
	f.mem.setBlockFree(off, true)
	f.stats.Frees++
	f.coalesce()
}

// coalesce merges list neighbours that are both free and touch in the
// arena, passing over the list until a pass merges nothing.
func (f *FirstFit) coalesce() {
	for merged := true; merged; {
		merged = false
		for off := f.mem.u64(metaHead); off != 0; {
			next := f.mem.blockNext(off)
			if next == 0 {
				break
			}
			if f.mem.blockFree(off) && f.mem.blockFree(next) && f.mem.blockEnd(off) == next {
				size := f.mem.blockSize(off) + blockHeaderSize + f.mem.blockSize(next)
				f.mem.setBlock(off, size, true, f.mem.blockNext(next))
				f.stats.Merges++
				merged = true
				continue
			}
			off = next
		}
	}
}

func (f *FirstFit) Destroy() {
	if f.mem == nil {
		return
	}
	clear(f.mem)
	f.mem = nil
}

func (f *FirstFit) Bytes(p Ptr, size uint64) []byte {
	return f.mem.payload(p, size)
}

// Walk yields blocks in list order, which is acquisition order.
func (f *FirstFit) Walk(fn func(b BlockInfo) bool) {
	if f.mem.checkMeta(magicFirstFit) != nil {
		return
	}
	for off := f.mem.u64(metaHead); off != 0; off = f.mem.blockNext(off) {
		b := BlockInfo{
			Off:    Ptr(off + blockHeaderSize),
			Size:   f.mem.blockSize(off),
			Header: blockHeaderSize,
			Free:   f.mem.blockFree(off),
		}
		if !fn(b) {
			return
		}
	}
}

func (f *FirstFit) Stats() Stats {
	s := f.stats
	s.TotalSize = uint64(len(f.mem))
	f.Walk(func(b BlockInfo) bool {
		s.Blocks++
		if b.Free {
			s.FreeBlocks++
			s.FreeBytes += b.Size
		} else {
			s.UsedBytes += b.Size
		}
		return true
	})
	if f.mem != nil {
		s.FreeBytes += f.source.Remaining()
	}
	return s
}
