package memalloc

// BestFit manages one fixed arena. Only free blocks are linked, in no
// particular order. Alloc scans the whole list for the smallest block that
// fits.
//
// Blocks tile the arena from the end of the metadata to metaEnd, so the
// physical neighbour of a block is always at blockEnd.
type BestFit struct {
	mem    arena
	config *Config
	stats  Stats
}

func NewBestFit(mem []byte, c *Config) (*BestFit, error) {
	config := mergeConfig(c)
	if err := config.validate(); err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, ErrNilMemory
	}
	if uint64(len(mem)) < BestFitMinSize(config) {
		return nil, ErrMemoryTooSmall
	}

	a := arena(mem)
	a.initMeta(magicBestFit, listMetaSize)
	size := alignDown(uint64(len(a))-listMetaSize-blockHeaderSize, config.Granularity)
	a.setBlock(listMetaSize, size, true, 0)
	a.put64(metaHead, listMetaSize)
	a.put64(metaEnd, listMetaSize+blockHeaderSize+size)
	return &BestFit{mem: a, config: config}, nil
}

// BestFitMinSize is the smallest arena NewBestFit accepts.
func BestFitMinSize(c *Config) uint64 {
	return listMetaSize + blockHeaderSize + mergeConfig(c).Granularity
}

func (b *BestFit) Alloc(size uint64) (Ptr, error) {
	if err := b.mem.checkMeta(magicBestFit); err != nil {
		return Nil, err
	}
	if size == 0 {
		return Nil, ErrZeroSize
	}
	if size > uint64(len(b.mem)) {
		return Nil, ErrNoSpace
	}
	size = alignUp(size, b.config.Granularity)

	var best, bestPrev, prev uint64
	for off := b.mem.u64(metaHead); off != 0; prev, off = off, b.mem.blockNext(off) {
		have := b.mem.blockSize(off)
		if have >= size && (best == 0 || have < b.mem.blockSize(best)) {
			best, bestPrev = off, prev
		}
	}
	if best == 0 {
		b.config.Logger.Debug("best-fit: no block fits", "size", size)
		return Nil, ErrNoSpace
	}

	replacement := b.mem.blockNext(best)
	if left := b.mem.blockSize(best) - size; left >= blockHeaderSize+b.config.Granularity {
		rest := best + blockHeaderSize + size
		b.mem.setBlock(rest, left-blockHeaderSize, true, replacement)
		b.mem.setBlockSize(best, size)
		replacement = rest
		b.stats.Splits++
	}
	if bestPrev == 0 {
		b.mem.put64(metaHead, replacement)
	} else {
		b.mem.setBlockNext(bestPrev, replacement)
	}
	b.mem.setBlock(best, b.mem.blockSize(best), false, 0)
	b.stats.Allocs++
	return Ptr(best + blockHeaderSize), nil
}

// Free pushes the block on the list head, then merges it with the free
// blocks touching it on either side in a single pass over the list.
func (b *BestFit) Free(p Ptr) {
	if p == Nil || b.mem.checkMeta(magicBestFit) != nil {
		return
	}
	off, ok := b.mem.blockOf(p)
	if !ok || off+blockHeaderSize > b.mem.u64(metaEnd) {
		return
	}

	b.mem.setBlock(off, b.mem.blockSize(off), true, b.mem.u64(metaHead))
	b.mem.put64(metaHead, off)
	b.stats.Frees++

	after := b.mem.blockEnd(off)
	var before uint64
	prev := off
	for cur := b.mem.blockNext(off); cur != 0; {
		next := b.mem.blockNext(cur)
		if cur == after {
			b.mem.setBlockNext(prev, next)
			b.mem.setBlockSize(off, b.mem.blockSize(off)+blockHeaderSize+b.mem.blockSize(cur))
			b.stats.Merges++
			cur = next
			continue
		}
		if b.mem.blockEnd(cur) == off {
			before = cur
		}
		prev = cur
		cur = next
	}

	if before != 0 {
		b.mem.put64(metaHead, b.mem.blockNext(off))
		b.mem.setBlockSize(before, b.mem.blockSize(before)+blockHeaderSize+b.mem.blockSize(off))
		b.stats.Merges++
	}
}

func (b *BestFit) Destroy() {
	if b.mem == nil {
		return
	}
	clear(b.mem)
	b.mem = nil
}

func (b *BestFit) Bytes(p Ptr, size uint64) []byte {
	return b.mem.payload(p, size)
}

// Walk yields every block, used or free, in address order.
func (b *BestFit) Walk(fn func(info BlockInfo) bool) {
	if b.mem.checkMeta(magicBestFit) != nil {
		return
	}
	end := b.mem.u64(metaEnd)
	for off := uint64(listMetaSize); off < end; off = b.mem.blockEnd(off) {
		info := BlockInfo{
			Off:    Ptr(off + blockHeaderSize),
			Size:   b.mem.blockSize(off),
			Header: blockHeaderSize,
			Free:   b.mem.blockFree(off),
		}
		if !fn(info) {
			return
		}
	}
}

// WalkFree yields the free list in list order.
func (b *BestFit) WalkFree(fn func(info BlockInfo) bool) {
	if b.mem.checkMeta(magicBestFit) != nil {
		return
	}
	for off := b.mem.u64(metaHead); off != 0; off = b.mem.blockNext(off) {
		info := BlockInfo{
			Off:    Ptr(off + blockHeaderSize),
			Size:   b.mem.blockSize(off),
			Header: blockHeaderSize,
			Free:   true,
		}
		if !fn(info) {
			return
		}
	}
}

func (b *BestFit) Stats() Stats {
	s := b.stats
	s.TotalSize = uint64(len(b.mem))
	b.Walk(func(info BlockInfo) bool {
		s.Blocks++
		if info.Free {
			s.FreeBlocks++
			s.FreeBytes += info.Size
		} else {
			s.UsedBytes += info.Size
		}
		return true
	})
	return s
}
