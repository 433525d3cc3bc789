package memalloc

import "errors"

var (
	ErrNilMemory      = errors.New("memalloc: memory is nil")
	ErrMemoryTooSmall = errors.New("memalloc: memory size too small")
	ErrZeroSize       = errors.New("memalloc: alloc size is zero")
	ErrTooLarge       = errors.New("memalloc: alloc size above max block size")
	ErrNoSpace        = errors.New("memalloc: memory no space")
	ErrDestroyed      = errors.New("memalloc: allocator destroyed")
	ErrCorrupt        = errors.New("memalloc: arena metadata corrupted")
	ErrInvalidConfig  = errors.New("memalloc: invalid config")
	ErrUnknownBackend = errors.New("memalloc: unknown backend")
)
