package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leslie-fei/memalloc"
	"github.com/leslie-fei/memalloc/gom"
)

// fakeAllocator reports whatever blocks and pages a test hands it.
type fakeAllocator struct {
	total  uint64
	blocks []memalloc.BlockInfo
	pages  []memalloc.PageInfo
}

func (f *fakeAllocator) Alloc(uint64) (memalloc.Ptr, error) { return memalloc.Nil, memalloc.ErrNoSpace }
func (f *fakeAllocator) Free(memalloc.Ptr) {}
func (f *fakeAllocator) Destroy() {}
func (f *fakeAllocator) Bytes(memalloc.Ptr, uint64) []byte { return nil }
func (f *fakeAllocator) Stats() memalloc.Stats { return memalloc.Stats{TotalSize: f.total} }

func (f *fakeAllocator) Walk(fn func(b memalloc.BlockInfo) bool) {
	for _, b := range f.blocks {
		if !fn(b) {
			return
		}
	}
}

func (f *fakeAllocator) WalkPages(fn func(p memalloc.PageInfo) bool) {
	for _, p := range f.pages {
		if !fn(p) {
			return
		}
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		blocks []memalloc.BlockInfo
		pages  []memalloc.PageInfo
		err    error
	}{
		{
			name: "valid",
			blocks: []memalloc.BlockInfo{
				{Off: 48, Size: 32, Header: 16, Free: true},
				{Off: 96, Size: 32, Header: 16},
				{Off: 144, Size: 64, Header: 16, Free: true},
			},
		},
		{
			name:   "out of arena",
			blocks: []memalloc.BlockInfo{{Off: 48, Size: 1024, Header: 16}},
			err:    ErrOutOfArena,
		},
		{
			name: "overlap",
			blocks: []memalloc.BlockInfo{
				{Off: 48, Size: 64, Header: 16},
				{Off: 96, Size: 32, Header: 16},
			},
			err: ErrOverlap,
		},
		{
			name: "unmerged",
			blocks: []memalloc.BlockInfo{
				{Off: 96, Size: 32, Header: 16, Free: true},
				{Off: 48, Size: 32, Header: 16, Free: true},
			},
			err: ErrAdjacentFree,
		},
		{
			name: "free slots may touch",
			blocks: []memalloc.BlockInfo{
				{Off: 64, Size: 32, Free: true},
				{Off: 96, Size: 32, Free: true},
			},
		},
		{
			name:  "free count",
			pages: []memalloc.PageInfo{{Off: 256, BlockSize: 32, Slots: 4, FreeCount: 4, Occupied: 1}},
			err:   ErrFreeCount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(&fakeAllocator{total: 512, blocks: tt.blocks, pages: tt.pages})
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCheck_RealBackends(t *testing.T) {
	for _, name := range []string{"firstfit", "bestfit", "slab"} {
		t.Run(name, func(t *testing.T) {
			f, err := memalloc.Lookup(name)
			require.NoError(t, err)
			// sizes below span 22 slab classes of one page each
			mem := gom.NewMemory(256 * memalloc.KB)
			require.NoError(t, mem.Attach())
			a, err := f(mem.Bytes(), nil)
			require.NoError(t, err)

			var ptrs []memalloc.Ptr
			for i := 1; i <= 40; i++ {
				p, err := a.Alloc(uint64(i * 17))
				require.NoError(t, err)
				ptrs = append(ptrs, p)
				require.NoError(t, Check(a))
			}
			for i := len(ptrs) - 1; i >= 0; i -= 3 {
				a.Free(ptrs[i])
				require.NoError(t, Check(a))
			}

			a.Destroy()
			assert.NoError(t, CheckScrubbed(mem))
		})
	}
}

func TestCheck_SlabExhaustion(t *testing.T) {
	mem := gom.NewMemory(64 * memalloc.KB)
	require.NoError(t, mem.Attach())
	a, err := memalloc.NewSlab(mem.Bytes(), nil)
	require.NoError(t, err)

	var exhausted bool
	for i := 1; i <= 40; i++ {
		_, err := a.Alloc(uint64(i * 17))
		if err != nil {
			assert.ErrorIs(t, err, memalloc.ErrNoSpace)
			exhausted = true
		}
		require.NoError(t, Check(a))
	}
	assert.True(t, exhausted, "one page per class cannot fit in 64 KiB")
	assert.Less(t, a.Stats().Pages, 22)
}

func TestCheckScrubbed(t *testing.T) {
	mem := gom.NewMemory(3*4096 + 10)
	require.NoError(t, mem.Attach())
	assert.NoError(t, CheckScrubbed(mem))

	mem.Bytes()[2*4096+5] = 1
	err := CheckScrubbed(mem)
	assert.ErrorIs(t, err, ErrNotScrubbed)
	assert.Contains(t, err.Error(), "0x2005")
}
