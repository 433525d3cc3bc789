package harness

import "errors"

var (
	ErrAllocFailed  = errors.New("harness: allocation failed mid-workload")
	ErrCorrupted    = errors.New("harness: payload changed behind its owner")
	ErrNotScrubbed  = errors.New("harness: arena not scrubbed by destroy")
	ErrOutOfArena   = errors.New("harness: block outside the arena")
	ErrOverlap      = errors.New("harness: blocks overlap")
	ErrAdjacentFree = errors.New("harness: adjacent free blocks left unmerged")
	ErrFreeCount    = errors.New("harness: page free count disagrees with bitmap")
)
