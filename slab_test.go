package memalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSlab(t *testing.T, size uint64) *Slab {
	t.Helper()
	s, err := NewSlab(newTestMemory(t, size), nil)
	require.NoError(t, err)
	return s
}

func pagesOf(s *Slab) []PageInfo {
	var pages []PageInfo
	s.WalkPages(func(p PageInfo) bool {
		pages = append(pages, p)
		return true
	})
	return pages
}

func TestSlab_Init(t *testing.T) {
	s := newSlab(t, 64*KB)
	assert.Equal(t, uint64(280), SlabMinSize(nil))
	assert.Empty(t, pagesOf(s))

	st := s.Stats()
	assert.Equal(t, uint64(64*KB-280), st.FreeBytes)
	assert.Equal(t, 0, st.Pages)
}

func TestSlab_FirstPageAtTail(t *testing.T) {
	s := newSlab(t, 64*KB)
	p, err := s.Alloc(1)
	require.NoError(t, err)

	pages := pagesOf(s)
	require.Len(t, pages, 1)
	// 32 byte class: 128 slots, 16 bitmap bytes, 32 header bytes
	assert.Equal(t, PageInfo{Off: 61392, BlockSize: 32, Slots: 128, FreeCount: 127, Occupied: 1, Data: 61440}, pages[0])
	assert.Equal(t, Ptr(61440), p)

	st := s.Stats()
	assert.Equal(t, uint64(61392-280+127*32), st.FreeBytes)
	assert.Equal(t, uint64(32), st.UsedBytes)
	assert.Equal(t, uint64(1), st.Grows)
}

func TestSlab_ClassRounding(t *testing.T) {
	s := newSlab(t, 64*KB)
	p1, _ := s.Alloc(1)
	p2, _ := s.Alloc(32)
	assert.Equal(t, p1+32, p2, "same class, neighbouring slots")

	p3, err := s.Alloc(33)
	require.NoError(t, err)
	pages := pagesOf(s)
	require.Len(t, pages, 2)
	// classes are walked smallest first
	assert.Equal(t, uint64(64), pages[1].BlockSize)
	assert.Equal(t, uint64(61392-4136), pages[1].Off)
	assert.Equal(t, pages[1].Data, p3)

	p4, err := s.Alloc(1024)
	require.NoError(t, err)
	assert.NotEqual(t, Nil, p4)

	_, err = s.Alloc(1025)
	assert.ErrorIs(t, err, ErrTooLarge)
	_, err = s.Alloc(0)
	assert.ErrorIs(t, err, ErrZeroSize)
}

func TestSlab_BitmapExhaustion(t *testing.T) {
	// metadata plus exactly one page of the 1024 byte class
	s := newSlab(t, 280+4136)

	var ptrs []Ptr
	for i := 0; i < 4; i++ {
		p, err := s.Alloc(1000)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	assert.Equal(t, []Ptr{320, 1344, 2368, 3392}, ptrs)
	assert.Equal(t, uint64(0), pagesOf(s)[0].FreeCount)

	_, err := s.Alloc(1000)
	assert.ErrorIs(t, err, ErrNoSpace)
	_, err = s.Alloc(32)
	assert.ErrorIs(t, err, ErrNoSpace, "no room left for a page of another class")

	s.Free(ptrs[2])
	p, err := s.Alloc(1024)
	require.NoError(t, err)
	assert.Equal(t, ptrs[2], p)
}

func TestSlab_NewPageWhenFull(t *testing.T) {
	s := newSlab(t, 64*KB)
	for i := 0; i < 5; i++ {
		_, err := s.Alloc(1024)
		require.NoError(t, err)
	}
	pages := pagesOf(s)
	require.Len(t, pages, 2)
	// newest page heads the class list
	assert.Equal(t, uint64(3), pages[0].FreeCount)
	assert.Equal(t, uint64(0), pages[1].FreeCount)
	assert.Less(t, pages[0].Off, pages[1].Off)
}

func TestSlab_FreeReusesSlot(t *testing.T) {
	s := newSlab(t, 64*KB)
	a, _ := s.Alloc(64)
	b, _ := s.Alloc(64)
	c, _ := s.Alloc(64)

	s.Free(b)
	p, err := s.Alloc(50)
	require.NoError(t, err)
	assert.Equal(t, b, p)

	s.Free(a)
	s.Free(c)
	page := pagesOf(s)[0]
	assert.Equal(t, page.Slots-1, page.FreeCount)
	assert.Equal(t, uint64(1), page.Occupied)
}

func TestSlab_DoubleFreeKeepsCount(t *testing.T) {
	s := newSlab(t, 64*KB)
	p, _ := s.Alloc(100)
	_, _ = s.Alloc(100)

	s.Free(p)
	before := pagesOf(s)[0]
	s.Free(p)
	after := pagesOf(s)[0]

	assert.Equal(t, before.FreeCount, after.FreeCount)
	assert.Equal(t, after.Slots-after.Occupied, after.FreeCount)
	assert.Equal(t, uint64(1), s.Stats().Frees)
}

func TestSlab_FreeUnknownPointer(t *testing.T) {
	s := newSlab(t, 64*KB)
	p, _ := s.Alloc(32)
	before := s.Stats()

	s.Free(Ptr(8))
	s.Free(p + 1<<20)
	assert.Equal(t, before, s.Stats())
}

func TestSlab_EmptyPagesStay(t *testing.T) {
	s := newSlab(t, 64*KB)
	var ptrs []Ptr
	for i := 0; i < 10; i++ {
		p, err := s.Alloc(256)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		s.Free(p)
	}

	st := s.Stats()
	assert.Equal(t, 1, st.Pages)
	assert.Equal(t, st.Blocks, st.FreeBlocks)
	assert.Equal(t, uint64(0), st.UsedBytes)

	p, err := s.Alloc(256)
	require.NoError(t, err)
	assert.Equal(t, ptrs[0], p)
	assert.Equal(t, 1, s.Stats().Pages)
}

func TestSlab_WalkAddressOrder(t *testing.T) {
	s := newSlab(t, 64*KB)
	_, _ = s.Alloc(32)
	_, _ = s.Alloc(512)

	var last Ptr
	var n int
	s.Walk(func(b BlockInfo) bool {
		assert.Greater(t, b.Off, last)
		last = b.Off
		n++
		return true
	})
	assert.Equal(t, 128+8, n)
}

func TestSlab_CustomClasses(t *testing.T) {
	s, err := NewSlab(newTestMemory(t, 64*KB), &Config{MinBlockSize: 16, MaxBlockSize: 256, PageSize: KB})
	require.NoError(t, err)

	p, err := s.Alloc(20)
	require.NoError(t, err)
	page := pagesOf(s)[0]
	assert.Equal(t, uint64(32), page.BlockSize)
	assert.Equal(t, uint64(32), page.Slots)
	assert.Equal(t, page.Data, p)

	_, err = s.Alloc(257)
	assert.ErrorIs(t, err, ErrTooLarge)
}
