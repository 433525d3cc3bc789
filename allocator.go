package memalloc

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// Ptr is a payload address expressed as a byte offset into the arena.
type Ptr uint64

// Nil is never returned by a successful Alloc, offset 0 holds allocator metadata.
const Nil Ptr = 0

// Allocator is the contract every backend implements. Implementations are
// not safe for concurrent use, wrap them with NewLocked when sharing one.
type Allocator interface {
	// Alloc returns a payload of at least size bytes, or Nil and an error.
	Alloc(size uint64) (Ptr, error)
	// Free returns p to the allocator. Free(Nil) is a no-op. Freeing a
	// pointer that did not come from this allocator, or freeing twice,
	// is undefined.
	Free(p Ptr)
	// Destroy scrubs the arena. Every outstanding Ptr becomes invalid.
	Destroy()
	// Bytes gives access to size bytes of the payload at p.
	Bytes(p Ptr, size uint64) []byte
	Stats() Stats
}

// Factory creates an allocator over mem, it is the create half of the contract.
type Factory func(mem []byte, c *Config) (Allocator, error)

type Stats struct {
	TotalSize  uint64 // arena bytes
	FreeBytes  uint64 // bytes a future Alloc could still be served from
	UsedBytes  uint64 // payload bytes handed out, after rounding
	Blocks     int    // blocks (list allocators) or slots (slab) known to the allocator
	FreeBlocks int
	Pages      int // slab pages carved so far

	Allocs uint64
	Frees  uint64
	Grows  uint64 // chunks acquired from the source or pages carved
	Splits uint64
	Merges uint64
}

// BlockInfo describes one block or slot for diagnostics.
type BlockInfo struct {
	Off    Ptr    // payload offset
	Size   uint64 // payload size
	Header uint64 // metadata bytes right before Off, 0 for slab slots
	Free   bool
}

// Walker is implemented by allocators able to enumerate their blocks in
// address order.
type Walker interface {
	Walk(fn func(b BlockInfo) bool)
}

// PageInfo describes one slab page.
type PageInfo struct {
	Off       uint64
	BlockSize uint64
	Slots     uint64
	FreeCount uint64 // as recorded in the page header
	Occupied  uint64 // bits set in the bitmap
	Data      Ptr
}

// PageWalker is implemented by allocators built from fixed size pages.
type PageWalker interface {
	WalkPages(fn func(p PageInfo) bool)
}

// Dump prints every block known to a, one line each.
func Dump(w io.Writer, a Allocator) {
	walker, ok := a.(Walker)
	if l, locked := a.(*lockedAllocator); locked {
		_, ok = l.a.(Walker)
		if !ok {
			a = l.a
		}
	}
	if !ok {
		fmt.Fprintf(w, "Free list: not available for %T\n", a)
		return
	}
	fmt.Fprintln(w, "Free list:")
	walker.Walk(func(b BlockInfo) bool {
		free := 0
		if b.Free {
			free = 1
		}
		fmt.Fprintf(w, "Block at 0x%x, size: %d, free: %d\n", uint64(b.Off)-b.Header, b.Size, free)
		return true
	})
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"firstfit": func(mem []byte, c *Config) (Allocator, error) {
			a, err := NewFirstFit(mem, c)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		"bestfit": func(mem []byte, c *Config) (Allocator, error) {
			a, err := NewBestFit(mem, c)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		"slab": func(mem []byte, c *Config) (Allocator, error) {
			a, err := NewSlab(mem, c)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
		"host": func(mem []byte, c *Config) (Allocator, error) {
			a, err := NewHost(mem, c)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
)

// Register makes a backend available to Lookup under name, replacing any
// previous registration.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return f, nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
