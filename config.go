package memalloc

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/leslie-fei/memalloc/internal/logger"
)

type MemoryType int

const (
	GO   MemoryType = 1
	SHM  MemoryType = 2
	MMAP MemoryType = 3
)

func (t MemoryType) String() string {
	switch t {
	case GO:
		return "go"
	case SHM:
		return "shm"
	case MMAP:
		return "mmap"
	}
	return fmt.Sprintf("MemoryType(%d)", int(t))
}

// ParseMemoryType is the inverse of MemoryType.String.
func ParseMemoryType(s string) (MemoryType, error) {
	for _, t := range []MemoryType{GO, SHM, MMAP} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: memory type %q", ErrInvalidConfig, s)
}

type Config struct {
	// memory type in GO SHM MMAP
	MemoryType MemoryType
	// shared memory key or mapped file path
	MemoryKey string
	// first-fit request rounding
	Alignment uint64
	// best-fit request rounding and smallest split remainder
	Granularity uint64
	// slab size classes run from MinBlockSize to MaxBlockSize stepped by MinBlockSize
	MinBlockSize uint64
	MaxBlockSize uint64
	// slab slot bytes per page
	PageSize uint64
	// debug events, logger.L when nil
	Logger *slog.Logger
}

func DefaultConfig() *Config {
	var defaultConfig = &Config{
		MemoryType:   GO,
		Alignment:    8,
		Granularity:  32,
		MinBlockSize: 32,
		MaxBlockSize: 1024,
		PageSize:     4 * KB,
	}
	return defaultConfig
}

// mergeConfig fills the zero fields of c from DefaultConfig without touching c.
func mergeConfig(c *Config) *Config {
	config := DefaultConfig()
	if c == nil {
		config.Logger = logger.L
		return config
	}
	if c.MemoryType != 0 {
		config.MemoryType = c.MemoryType
	}
	config.MemoryKey = c.MemoryKey
	if c.Alignment != 0 {
		config.Alignment = c.Alignment
	}
	if c.Granularity != 0 {
		config.Granularity = c.Granularity
	}
	if c.MinBlockSize != 0 {
		config.MinBlockSize = c.MinBlockSize
	}
	if c.MaxBlockSize != 0 {
		config.MaxBlockSize = c.MaxBlockSize
	}
	if c.PageSize != 0 {
		config.PageSize = c.PageSize
	}
	config.Logger = c.Logger
	if config.Logger == nil {
		config.Logger = logger.L
	}
	return config
}

func (c *Config) validate() error {
	for _, f := range []struct {
		name string
		v    uint64
	}{
		{"Alignment", c.Alignment},
		{"Granularity", c.Granularity},
		{"MinBlockSize", c.MinBlockSize},
	} {
		if f.v < 2 || bits.OnesCount64(f.v) != 1 {
			return fmt.Errorf("%w: %s %d must be a power of two >= 2", ErrInvalidConfig, f.name, f.v)
		}
	}
	if c.MaxBlockSize < c.MinBlockSize || c.MaxBlockSize%c.MinBlockSize != 0 {
		return fmt.Errorf("%w: MaxBlockSize %d must be a multiple of MinBlockSize %d",
			ErrInvalidConfig, c.MaxBlockSize, c.MinBlockSize)
	}
	if c.PageSize < c.MaxBlockSize {
		return fmt.Errorf("%w: PageSize %d below MaxBlockSize %d", ErrInvalidConfig, c.PageSize, c.MaxBlockSize)
	}
	return nil
}
