package memalloc

import (
	"math/bits"
	"sort"
)

// Slab page header, followed by the occupancy bitmap and the slots.
const (
	pageBlockSize  = 0
	pageFreeCount  = 8
	pageNext       = 16
	pageData       = 24
	pageHeaderSize = 32
)

// Slab serves requests up to MaxBlockSize from per size class pages. Pages
// are carved from the end of the arena downward the first time a class
// needs one and stay with that class for the allocator's lifetime, even
// when every slot is free again.
type Slab struct {
	mem     arena
	config  *Config
	classes uint64
	stats   Stats
}

func NewSlab(mem []byte, c *Config) (*Slab, error) {
	config := mergeConfig(c)
	if err := config.validate(); err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, ErrNilMemory
	}
	if uint64(len(mem)) < SlabMinSize(config) {
		return nil, ErrMemoryTooSmall
	}

	s := &Slab{mem: arena(mem), config: config, classes: config.MaxBlockSize / config.MinBlockSize}
	s.mem.initMeta(magicSlab, s.metaSize())
	s.mem.put64(metaTail, alignDown(uint64(len(mem)), 8))
	return s, nil
}

// SlabMinSize is the smallest arena NewSlab accepts. Pages are carved
// lazily so an arena of exactly this size accepts no allocation.
func SlabMinSize(c *Config) uint64 {
	config := mergeConfig(c)
	return metaClasses + 8*(config.MaxBlockSize/config.MinBlockSize)
}

func (s *Slab) metaSize() uint64 {
	return metaClasses + 8*s.classes
}

func (s *Slab) classHead(class uint64) uint64 {
	return s.mem.u64(metaClasses + 8*class)
}

// pageLayout returns the slot count and bitmap bytes of a page for
// blockSize, and the total bytes carved for it.
func (s *Slab) pageLayout(blockSize uint64) (slots, bitmapLen, total uint64) {
	slots = s.config.PageSize / blockSize
	bitmapLen = alignUp((slots+7)/8, 8)
	total = pageHeaderSize + bitmapLen + slots*blockSize
	return
}

func (s *Slab) Alloc(size uint64) (Ptr, error) {
	if err := s.mem.checkMeta(magicSlab); err != nil {
		return Nil, err
	}
	if size == 0 {
		return Nil, ErrZeroSize
	}
	if size > s.config.MaxBlockSize {
		return Nil, ErrTooLarge
	}
	size = alignUp(size, s.config.MinBlockSize)
	class := size/s.config.MinBlockSize - 1

	page := s.classHead(class)
	for page != 0 && s.mem.u64(page+pageFreeCount) == 0 {
		page = s.mem.u64(page + pageNext)
	}
	if page == 0 {
		var err error
		if page, err = s.carve(class, size); err != nil {
			return Nil, err
		}
	}

	slots, _, _ := s.pageLayout(size)
	bitmap := page + pageHeaderSize
	for i := uint64(0); i < slots; i++ {
		mask := byte(1) << (i % 8)
		if s.mem[bitmap+i/8]&mask != 0 {
			continue
		}
		s.mem[bitmap+i/8] |= mask
		s.mem.put64(page+pageFreeCount, s.mem.u64(page+pageFreeCount)-1)
		s.stats.Allocs++
		return Ptr(s.mem.u64(page+pageData) + i*size), nil
	}
	// free count said there was room but the bitmap is full
	return Nil, ErrCorrupt
}

// carve takes a new page for class off the arena tail and links it first
// in the class list.
func (s *Slab) carve(class, blockSize uint64) (uint64, error) {
	slots, bitmapLen, total := s.pageLayout(blockSize)
	tail := s.mem.u64(metaTail)
	if tail < s.metaSize()+total {
		s.config.Logger.Debug("slab: arena exhausted", "blockSize", blockSize, "tail", tail)
		return 0, ErrNoSpace
	}

	page := tail - total
	s.mem.put64(page+pageBlockSize, blockSize)
	s.mem.put64(page+pageFreeCount, slots)
	s.mem.put64(page+pageNext, s.classHead(class))
	s.mem.put64(page+pageData, page+pageHeaderSize+bitmapLen)
	clear(s.mem[page+pageHeaderSize : page+pageHeaderSize+bitmapLen])

	s.mem.put64(metaClasses+8*class, page)
	s.mem.put64(metaTail, page)
	s.stats.Grows++
	s.config.Logger.Debug("slab: carved page", "blockSize", blockSize, "offset", page, "slots", slots)
	return page, nil
}

// Free finds the page whose slots contain p and clears its bit. Clearing an
// already clear bit changes nothing.
func (s *Slab) Free(p Ptr) {
	if p == Nil || s.mem.checkMeta(magicSlab) != nil {
		return
	}
	off := uint64(p)
	for class := uint64(0); class < s.classes; class++ {
		for page := s.classHead(class); page != 0; page = s.mem.u64(page + pageNext) {
			blockSize := s.mem.u64(page + pageBlockSize)
			slots, _, _ := s.pageLayout(blockSize)
			data := s.mem.u64(page + pageData)
			if off < data || off >= data+slots*blockSize {
				continue
			}
			i := (off - data) / blockSize
			bitmap := page + pageHeaderSize
			mask := byte(1) << (i % 8)
			if s.mem[bitmap+i/8]&mask != 0 {
				s.mem[bitmap+i/8] &^= mask
				s.mem.put64(page+pageFreeCount, s.mem.u64(page+pageFreeCount)+1)
				s.stats.Frees++
			}
			return
		}
	}
}

func (s *Slab) Destroy() {
	if s.mem == nil {
		return
	}
	clear(s.mem)
	s.mem = nil
}

func (s *Slab) Bytes(p Ptr, size uint64) []byte {
	return s.mem.payload(p, size)
}

// WalkPages yields pages class by class, newest first within a class.
func (s *Slab) WalkPages(fn func(p PageInfo) bool) {
	if s.mem.checkMeta(magicSlab) != nil {
		return
	}
	for class := uint64(0); class < s.classes; class++ {
		for page := s.classHead(class); page != 0; page = s.mem.u64(page + pageNext) {
			blockSize := s.mem.u64(page + pageBlockSize)
			slots, bitmapLen, _ := s.pageLayout(blockSize)
			var occupied int
			for _, b := range s.mem[page+pageHeaderSize : page+pageHeaderSize+bitmapLen] {
				occupied += bits.OnesCount8(b)
			}
			info := PageInfo{
				Off:       page,
				BlockSize: blockSize,
				Slots:     slots,
				FreeCount: s.mem.u64(page + pageFreeCount),
				Occupied:  uint64(occupied),
				Data:      Ptr(s.mem.u64(page + pageData)),
			}
			if !fn(info) {
				return
			}
		}
	}
}

// Walk yields every slot of every page in address order.
func (s *Slab) Walk(fn func(b BlockInfo) bool) {
	var pages []PageInfo
	s.WalkPages(func(p PageInfo) bool {
		pages = append(pages, p)
		return true
	})
	sort.Slice(pages, func(i, j int) bool { return pages[i].Off < pages[j].Off })

	for _, p := range pages {
		bitmap := p.Off + pageHeaderSize
		for i := uint64(0); i < p.Slots; i++ {
			b := BlockInfo{
				Off:  p.Data + Ptr(i*p.BlockSize),
				Size: p.BlockSize,
				Free: s.mem[bitmap+i/8]&(1<<(i%8)) == 0,
			}
			if !fn(b) {
				return
			}
		}
	}
}

func (s *Slab) Stats() Stats {
	st := s.stats
	st.TotalSize = uint64(len(s.mem))
	if s.mem.checkMeta(magicSlab) != nil {
		return st
	}
	st.FreeBytes = s.mem.u64(metaTail) - s.metaSize()
	s.WalkPages(func(p PageInfo) bool {
		st.Pages++
		st.Blocks += int(p.Slots)
		st.FreeBlocks += int(p.FreeCount)
		st.FreeBytes += p.FreeCount * p.BlockSize
		st.UsedBytes += p.Occupied * p.BlockSize
		return true
	})
	return st
}
