package memalloc

import (
	"fmt"

	mmapgo "github.com/edsrzf/mmap-go"
)

// Host maps every allocation straight from the operating system. It is the
// fallback backend: its payloads live outside the arena, take no part in
// arena bookkeeping and a Ptr from it is a handle, not an arena offset.
type Host struct {
	mem     arena
	config  *Config
	regions map[Ptr]mmapgo.MMap
	last    Ptr
	stats   Stats
}

func NewHost(mem []byte, c *Config) (*Host, error) {
	config := mergeConfig(c)
	if mem == nil {
		return nil, ErrNilMemory
	}
	config.Logger.Warn("host backend: allocations are mapped from the host and bypass the arena",
		"arena", len(mem))
	return &Host{mem: arena(mem), config: config, regions: make(map[Ptr]mmapgo.MMap)}, nil
}

func (h *Host) Alloc(size uint64) (Ptr, error) {
	if h.regions == nil {
		return Nil, ErrDestroyed
	}
	if size == 0 {
		return Nil, ErrZeroSize
	}
	region, err := mmapgo.MapRegion(nil, int(size), mmapgo.RDWR, mmapgo.ANON, 0)
	if err != nil {
		return Nil, fmt.Errorf("%w: %v", ErrNoSpace, err)
	}
	h.last++
	h.regions[h.last] = region
	h.stats.Allocs++
	h.stats.Grows++
	return h.last, nil
}

func (h *Host) Free(p Ptr) {
	region, ok := h.regions[p]
	if !ok {
		return
	}
	if err := region.Unmap(); err != nil {
		h.config.Logger.Error("host backend: unmap failed", "ptr", uint64(p), "err", err)
	}
	delete(h.regions, p)
	h.stats.Frees++
}

func (h *Host) Destroy() {
	if h.regions == nil {
		return
	}
	for p := range h.regions {
		h.Free(p)
	}
	clear(h.mem)
	h.regions = nil
}

func (h *Host) Bytes(p Ptr, size uint64) []byte {
	region, ok := h.regions[p]
	if !ok || size > uint64(len(region)) {
		return nil
	}
	return region[:size:size]
}

func (h *Host) Stats() Stats {
	s := h.stats
	s.TotalSize = uint64(len(h.mem))
	s.FreeBytes = s.TotalSize
	s.Blocks = len(h.regions)
	for _, region := range h.regions {
		s.UsedBytes += uint64(len(region))
	}
	return s
}
