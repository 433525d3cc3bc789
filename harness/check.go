package harness

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/leslie-fei/memalloc"
)

// Check validates the block structure of a. Allocators that cannot
// enumerate their blocks pass trivially.
//
//   - every block lies inside the arena and no two blocks overlap
//   - no two free blocks with headers touch, they must have been merged
//   - every page's free count equals the zero bits of its bitmap
func Check(a memalloc.Allocator) error {
	total := a.Stats().TotalSize

	if walker, ok := a.(memalloc.Walker); ok {
		var blocks []memalloc.BlockInfo
		walker.Walk(func(b memalloc.BlockInfo) bool {
			blocks = append(blocks, b)
			return true
		})
		sort.Slice(blocks, func(i, j int) bool { return blocks[i].Off < blocks[j].Off })

		for i, b := range blocks {
			start := uint64(b.Off) - b.Header
			if uint64(b.Off) < b.Header || uint64(b.Off)+b.Size > total {
				return errors.Wrapf(ErrOutOfArena, "block at 0x%x size %d, arena %d", start, b.Size, total)
			}
			if i == 0 {
				continue
			}
			prev := blocks[i-1]
			prevEnd := uint64(prev.Off) + prev.Size
			if prevEnd > start {
				return errors.Wrapf(ErrOverlap, "block at 0x%x ends at 0x%x past 0x%x", uint64(prev.Off)-prev.Header, prevEnd, start)
			}
			if b.Header > 0 && prev.Free && b.Free && prevEnd == start {
				return errors.Wrapf(ErrAdjacentFree, "blocks at 0x%x and 0x%x", uint64(prev.Off)-prev.Header, start)
			}
		}
	}

	var err error
	if walker, ok := a.(memalloc.PageWalker); ok {
		walker.WalkPages(func(p memalloc.PageInfo) bool {
			if p.FreeCount != p.Slots-p.Occupied {
				err = errors.Wrapf(ErrFreeCount, "page at 0x%x records %d free, bitmap has %d of %d slots set",
					p.Off, p.FreeCount, p.Occupied, p.Slots)
				return false
			}
			return true
		})
	}
	return err
}

// CheckScrubbed returns ErrNotScrubbed when any byte of mem is non zero.
func CheckScrubbed(mem memalloc.Memory) error {
	const step = 4096
	var dirty int64 = -1
	mem.Travel(0, func(offset uint64, b []byte) uint64 {
		n := min(len(b), step)
		for i, v := range b[:n] {
			if v != 0 {
				dirty = int64(offset) + int64(i)
				return 0
			}
		}
		return uint64(n)
	})
	if dirty >= 0 {
		return errors.Wrapf(ErrNotScrubbed, "first dirty byte at 0x%x", dirty)
	}
	return nil
}
