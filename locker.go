package memalloc

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type Locker interface {
	sync.Locker
}

// spinLocker yields the processor while another goroutine holds it.
type spinLocker struct {
	write int32
}

func NewSpinLocker() Locker {
	return &spinLocker{}
}

func (l *spinLocker) Lock() {
	for !atomic.CompareAndSwapInt32(&l.write, 0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLocker) Unlock() {
	if !atomic.CompareAndSwapInt32(&l.write, 1, 0) {
		panic("unlock an unlocked-lock")
	}
}

// lockedAllocator serializes every call on the wrapped allocator.
type lockedAllocator struct {
	locker Locker
	a      Allocator
}

// NewLocked makes a safe for concurrent use by holding locker around each
// call. A nil locker uses a sync.Mutex.
func NewLocked(a Allocator, locker Locker) Allocator {
	if locker == nil {
		locker = &sync.Mutex{}
	}
	return &lockedAllocator{locker: locker, a: a}
}

func (l *lockedAllocator) Alloc(size uint64) (Ptr, error) {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.a.Alloc(size)
}

func (l *lockedAllocator) Free(p Ptr) {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.a.Free(p)
}

func (l *lockedAllocator) Destroy() {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.a.Destroy()
}

// Bytes only guards the lookup, callers own the returned payload.
func (l *lockedAllocator) Bytes(p Ptr, size uint64) []byte {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.a.Bytes(p, size)
}

func (l *lockedAllocator) Stats() Stats {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.a.Stats()
}

func (l *lockedAllocator) Walk(fn func(b BlockInfo) bool) {
	walker, ok := l.a.(Walker)
	if !ok {
		return
	}
	l.locker.Lock()
	defer l.locker.Unlock()
	walker.Walk(fn)
}

func (l *lockedAllocator) WalkPages(fn func(p PageInfo) bool) {
	walker, ok := l.a.(PageWalker)
	if !ok {
		return
	}
	l.locker.Lock()
	defer l.locker.Unlock()
	walker.WalkPages(fn)
}
