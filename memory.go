package memalloc

import (
	"fmt"

	"github.com/leslie-fei/memalloc/gom"
	"github.com/leslie-fei/memalloc/mmap"
	"github.com/leslie-fei/memalloc/shm"
)

const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// Memory is a contiguous region obtained from the host. An allocator is
// created over Bytes() and owns it until Destroy.
type Memory interface {
	// Attach maps or creates the region.
	Attach() error
	// Detach releases the region, Bytes returns nil afterwards.
	Detach() error
	// Bytes the whole region
	Bytes() []byte
	// Size memory total size
	Size() uint64
	// Travel walks the region from skipOffset, fn returns how many bytes to advance, 0 stops.
	Travel(skipOffset uint64, fn func(offset uint64, b []byte) uint64)
}

// NewMemory returns an unattached region of size bytes of the configured type.
func NewMemory(size uint64, c *Config) (Memory, error) {
	config := mergeConfig(c)
	switch config.MemoryType {
	case GO:
		return gom.NewMemory(size), nil
	case SHM:
		if config.MemoryKey == "" {
			return nil, fmt.Errorf("%w: shm MemoryKey is required", ErrInvalidConfig)
		}
		return shm.NewMemory(config.MemoryKey, size, true), nil
	case MMAP:
		if config.MemoryKey == "" {
			return nil, fmt.Errorf("%w: mmap MemoryKey is required", ErrInvalidConfig)
		}
		return mmap.NewMemory(config.MemoryKey, size), nil
	default:
		return nil, fmt.Errorf("%w: MemoryType %d not support", ErrInvalidConfig, config.MemoryType)
	}
}
