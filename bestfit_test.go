package memalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBestFit(t *testing.T, size, granularity uint64) *BestFit {
	t.Helper()
	b, err := NewBestFit(newTestMemory(t, size), &Config{Granularity: granularity})
	require.NoError(t, err)
	return b
}

func freeListOf(b *BestFit) []BlockInfo {
	var blocks []BlockInfo
	b.WalkFree(func(info BlockInfo) bool {
		blocks = append(blocks, info)
		return true
	})
	return blocks
}

func TestBestFit_Init(t *testing.T) {
	b := newBestFit(t, 64*KB, 0)
	blocks := blocksOf(b)
	require.Len(t, blocks, 1)
	// 65536 - 32 - 16 rounded down to 32
	assert.Equal(t, BlockInfo{Off: listMetaSize + blockHeaderSize, Size: 65472, Header: blockHeaderSize, Free: true}, blocks[0])
	assert.Equal(t, uint64(65472), b.Stats().FreeBytes)
}

func TestBestFit_RoundsToGranularity(t *testing.T) {
	b := newBestFit(t, 4*KB, 0)
	p, err := b.Alloc(1)
	require.NoError(t, err)
	q, err := b.Alloc(33)
	require.NoError(t, err)

	assert.Equal(t, p+32+blockHeaderSize, q)
	blocks := blocksOf(b)
	assert.Equal(t, uint64(32), blocks[0].Size)
	assert.Equal(t, uint64(64), blocks[1].Size)
	assert.Equal(t, uint64(2), b.Stats().Splits)
}

func TestBestFit_SelectsSmallestFit(t *testing.T) {
	b := newBestFit(t, 4*KB, 4)
	p40, _ := b.Alloc(40)
	_, _ = b.Alloc(8)
	p64, _ := b.Alloc(64)
	_, _ = b.Alloc(8)
	p100, _ := b.Alloc(100)
	_, _ = b.Alloc(8)
	b.Free(p40)
	b.Free(p64)
	b.Free(p100)

	sizes := map[uint64]bool{}
	for _, info := range freeListOf(b) {
		sizes[info.Size] = true
	}
	assert.True(t, sizes[40] && sizes[64] && sizes[100])

	p, err := b.Alloc(50)
	require.NoError(t, err)
	assert.Equal(t, p64, p)
	// leftover 12 cannot hold a header and a granule, no split
	assert.Equal(t, uint64(6), b.Stats().Splits)
	for _, info := range freeListOf(b) {
		assert.NotEqual(t, p64, info.Off)
	}
}

func TestBestFit_TieKeepsListOrder(t *testing.T) {
	b := newBestFit(t, 4*KB, 8)
	p1, _ := b.Alloc(64)
	_, _ = b.Alloc(8)
	p2, _ := b.Alloc(64)
	_, _ = b.Alloc(8)
	b.Free(p1)
	b.Free(p2)

	// p2 was pushed last so it heads the list
	p, err := b.Alloc(64)
	require.NoError(t, err)
	assert.Equal(t, p2, p)
}

func TestBestFit_WholeBlockWhenLeftoverSmall(t *testing.T) {
	b := newBestFit(t, 4*KB, 8)
	a, _ := b.Alloc(64)
	_, _ = b.Alloc(8)
	b.Free(a)

	p, err := b.Alloc(48)
	require.NoError(t, err)
	assert.Equal(t, a, p)
	assert.Equal(t, uint64(64), blocksOf(b)[0].Size)
	assert.NotNil(t, b.Bytes(p, 64))
}

func TestBestFit_Coalesce(t *testing.T) {
	for _, order := range []string{"forward", "backward"} {
		t.Run(order, func(t *testing.T) {
			b := newBestFit(t, 4*KB, 8)
			a, _ := b.Alloc(64)
			c, _ := b.Alloc(64)
			_, _ = b.Alloc(8)
			if order == "forward" {
				b.Free(a)
				b.Free(c)
			} else {
				b.Free(c)
				b.Free(a)
			}

			free := freeListOf(b)
			require.Len(t, free, 2, "merged pair plus the arena tail")
			assert.Equal(t, uint64(1), b.Stats().Merges)

			p, err := b.Alloc(64 + blockHeaderSize + 64)
			require.NoError(t, err)
			assert.Equal(t, a, p)
		})
	}
}

func TestBestFit_CoalesceBothSides(t *testing.T) {
	b := newBestFit(t, 4*KB, 8)
	x, _ := b.Alloc(32)
	y, _ := b.Alloc(32)
	z, _ := b.Alloc(32)
	_, _ = b.Alloc(8)
	b.Free(x)
	b.Free(z)
	require.Len(t, freeListOf(b), 3)

	b.Free(y)
	free := freeListOf(b)
	require.Len(t, free, 2)
	merged := free[0]
	if merged.Off != x {
		merged = free[1]
	}
	assert.Equal(t, x, merged.Off)
	assert.Equal(t, uint64(3*32+2*blockHeaderSize), merged.Size)
	assert.Equal(t, uint64(2), b.Stats().Merges)
}

func TestBestFit_FreeAllRestoresArena(t *testing.T) {
	b := newBestFit(t, 64*KB, 0)
	fresh := b.Stats()

	var ptrs []Ptr
	for i := 1; i <= 50; i++ {
		p, err := b.Alloc(uint64(i * 13))
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	for i := 0; i < len(ptrs); i += 2 {
		b.Free(ptrs[i])
	}
	for i := 1; i < len(ptrs); i += 2 {
		b.Free(ptrs[i])
	}

	st := b.Stats()
	assert.Equal(t, 1, st.Blocks)
	assert.Equal(t, fresh.FreeBytes, st.FreeBytes)
}

func TestBestFit_Exhaustion(t *testing.T) {
	b := newBestFit(t, 256, 0)
	// 256 - 32 - 16 = 208 -> 192 usable
	p, err := b.Alloc(192)
	require.NoError(t, err)

	_, err = b.Alloc(1)
	assert.ErrorIs(t, err, ErrNoSpace)
	_, err = b.Alloc(1 << 40)
	assert.ErrorIs(t, err, ErrNoSpace)

	b.Free(p)
	_, err = b.Alloc(192)
	assert.NoError(t, err)
}
