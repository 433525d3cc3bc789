// Package harness drives any memalloc backend through a randomized
// allocate / free workload, times both phases and validates the backend
// after every mutation when asked to.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"github.com/leslie-fei/memalloc"
	"github.com/leslie-fei/memalloc/internal/logger"
)

// Order is the order in which the free phase releases allocations.
type Order int

const (
	FIFO Order = iota
	LIFO
	Random
)

func (o Order) String() string {
	switch o {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case Random:
		return "random"
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

func ParseOrder(s string) (Order, error) {
	for _, o := range []Order{FIFO, LIFO, Random} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("harness: unknown free order %q", s)
}

type Workload struct {
	Count   int    // allocations to issue
	MaxSize uint64 // sizes are uniform in [1, MaxSize]
	Seed    int64
	Order   Order
	// Check runs Check after every alloc and free
	Check bool
	// Fingerprint fills every payload and verifies the digests before freeing
	Fingerprint bool
}

func DefaultWorkload() Workload {
	return Workload{
		Count:       10000,
		MaxSize:     1024,
		Seed:        1,
		Order:       FIFO,
		Fingerprint: true,
	}
}

// Step is one mutation reported to the step hook.
type Step struct {
	Op    string // "alloc" or "free"
	Index int
	Size  uint64
	Ptr   memalloc.Ptr
}

type Result struct {
	Backend   string
	Workload  Workload
	Allocated int
	AllocTime time.Duration
	FreeTime  time.Duration
	Peak      memalloc.Stats // after the allocation phase
	Final     memalloc.Stats // after the free phase, before destroy
	Checks    int
}

type Option func(*runner)

// WithStepHook calls fn after every mutation, with the allocator in its
// post-mutation state.
func WithStepHook(fn func(s Step, a memalloc.Allocator)) Option {
	return func(r *runner) {
		r.onStep = fn
	}
}

// WithProgress draws a progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(r *runner) {
		r.progress = w
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		r.log = l
	}
}

type runner struct {
	onStep   func(Step, memalloc.Allocator)
	progress io.Writer
	log      *slog.Logger
	bar      *progressbar.ProgressBar
}

func (r *runner) step(s Step, a memalloc.Allocator) {
	if r.onStep != nil {
		r.onStep(s, a)
	}
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
}

// Run creates an allocator with factory over mem, runs wl against it and
// destroys it. mem must be attached. Any allocation failure is fatal to
// the run and reported as ErrAllocFailed. Cancelling ctx stops the run
// between two mutations, the allocator is destroyed either way.
func Run(ctx context.Context, name string, factory memalloc.Factory, mem memalloc.Memory, c *memalloc.Config, wl Workload, opts ...Option) (*Result, error) {
	r := &runner{log: logger.L}
	for _, opt := range opts {
		opt(r)
	}
	if wl.Count <= 0 || wl.MaxSize == 0 {
		return nil, errors.Errorf("harness: empty workload %+v", wl)
	}

	a, err := factory(mem.Bytes(), c)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s over %d bytes", name, mem.Size())
	}

	if r.progress != nil {
		r.bar = progressbar.NewOptions(2*wl.Count,
			progressbar.OptionSetWriter(r.progress),
			progressbar.OptionSetDescription(name),
			progressbar.OptionShowCount(),
		)
		defer func() { _ = r.bar.Finish() }()
	}

	res := &Result{Backend: name, Workload: wl}
	sizes := rand.New(rand.NewSource(wl.Seed))
	ptrs := make([]memalloc.Ptr, wl.Count)

	for i := range ptrs {
		if err := ctx.Err(); err != nil {
			a.Destroy()
			return res, errors.Wrapf(err, "%s: stopped after %d allocations", name, i)
		}
		size := uint64(sizes.Int63n(int64(wl.MaxSize))) + 1
		start := time.Now()
		p, err := a.Alloc(size)
		res.AllocTime += time.Since(start)
		if err != nil {
			r.log.Error("allocation failed", "backend", name, "index", i, "size", size, "err", err)
			a.Destroy()
			return res, errors.Wrapf(ErrAllocFailed, "%s: alloc #%d of %d bytes: %v", name, i, size, err)
		}
		ptrs[i] = p
		res.Allocated++
		if err := r.check(a, wl, res); err != nil {
			a.Destroy()
			return res, errors.Wrapf(err, "%s: after alloc #%d", name, i)
		}
		r.step(Step{Op: "alloc", Index: i, Size: size, Ptr: p}, a)
	}
	res.Peak = a.Stats()

	if wl.Fingerprint {
		if err := verifyPayloads(a, ptrs, wl); err != nil {
			a.Destroy()
			return res, errors.Wrapf(err, "%s", name)
		}
	}

	for n, i := range freeOrder(wl) {
		if err := ctx.Err(); err != nil {
			a.Destroy()
			return res, errors.Wrapf(err, "%s: stopped after %d frees", name, n)
		}
		start := time.Now()
		a.Free(ptrs[i])
		res.FreeTime += time.Since(start)
		if err := r.check(a, wl, res); err != nil {
			a.Destroy()
			return res, errors.Wrapf(err, "%s: after free #%d (alloc #%d)", name, n, i)
		}
		r.step(Step{Op: "free", Index: i, Ptr: ptrs[i]}, a)
	}
	res.Final = a.Stats()

	a.Destroy()
	if err := CheckScrubbed(mem); err != nil {
		return res, errors.Wrapf(err, "%s", name)
	}
	r.log.Info("workload done", "backend", name, "count", wl.Count,
		"alloc", res.AllocTime, "free", res.FreeTime)
	return res, nil
}

func (r *runner) check(a memalloc.Allocator, wl Workload, res *Result) error {
	if !wl.Check {
		return nil
	}
	res.Checks++
	return Check(a)
}

// verifyPayloads fills every payload in allocation order and then reads
// them all back. A later fill landing on an earlier payload shows up as a
// digest mismatch.
func verifyPayloads(a memalloc.Allocator, ptrs []memalloc.Ptr, wl Workload) error {
	sizes := rand.New(rand.NewSource(wl.Seed))
	data := rand.New(rand.NewSource(wl.Seed ^ 0x5eed))
	lens := make([]uint64, len(ptrs))
	sums := make([]uint64, len(ptrs))
	for i, p := range ptrs {
		lens[i] = uint64(sizes.Int63n(int64(wl.MaxSize))) + 1
		payload := a.Bytes(p, lens[i])
		if payload == nil {
			return errors.Wrapf(ErrCorrupted, "alloc #%d: no %d byte payload at 0x%x", i, lens[i], uint64(p))
		}
		sums[i] = fill(data, payload)
	}
	for i, p := range ptrs {
		if got := xxHashBytes(a.Bytes(p, lens[i])); got != sums[i] {
			return errors.Wrapf(ErrCorrupted, "alloc #%d at 0x%x", i, uint64(p))
		}
	}
	return nil
}

func freeOrder(wl Workload) []int {
	order := make([]int, wl.Count)
	for i := range order {
		order[i] = i
	}
	switch wl.Order {
	case LIFO:
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	case Random:
		rng := rand.New(rand.NewSource(wl.Seed))
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order
}
