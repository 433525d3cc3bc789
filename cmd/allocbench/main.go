package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/leslie-fei/memalloc"
	"github.com/leslie-fei/memalloc/harness"
	"github.com/leslie-fei/memalloc/internal/logger"
	"github.com/leslie-fei/memalloc/shm"
)

var globalFlags = []cli.Flag{
	&cli.Uint64Flag{
		Name:  "arena",
		Value: 64 * memalloc.MB,
		Usage: "arena size in bytes",
	},
	&cli.StringFlag{
		Name:  "memory",
		Value: "go",
		Usage: "arena backing: go, shm or mmap",
	},
	&cli.StringFlag{
		Name:  "key",
		Value: "",
		Usage: "shm key or mmap file path",
	},
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "log allocator events to stderr",
	},
}

var runFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  "count",
		Value: 10000,
		Usage: "number of allocations",
	},
	&cli.Uint64Flag{
		Name:  "max-size",
		Value: 1024,
		Usage: "largest allocation size, sizes are uniform in [1, max-size]",
	},
	&cli.Int64Flag{
		Name:  "seed",
		Value: 1,
		Usage: "workload seed",
	},
	&cli.StringFlag{
		Name:  "order",
		Value: "fifo",
		Usage: "free order: fifo, lifo or random",
	},
	&cli.BoolFlag{
		Name:  "check",
		Usage: "validate block invariants after every alloc and free",
	},
	&cli.BoolFlag{
		Name:  "no-verify",
		Usage: "skip filling and verifying payloads",
	},
	&cli.BoolFlag{
		Name:  "dump",
		Usage: "print the block list after every alloc and free",
	},
	&cli.BoolFlag{
		Name:  "progress",
		Usage: "show a progress bar on stderr",
	},
	&cli.StringFlag{
		Name:  "out",
		Value: "",
		Usage: "file to write observations to (use .gz extension for compression)",
	},
}

func memoryConfig(c *cli.Context) (*memalloc.Config, error) {
	typ, err := memalloc.ParseMemoryType(c.String("memory"))
	if err != nil {
		return nil, err
	}
	config := memalloc.DefaultConfig()
	config.MemoryType = typ
	config.MemoryKey = c.String("key")
	return config, nil
}

func attach(c *cli.Context, config *memalloc.Config) (memalloc.Memory, error) {
	mem, err := memalloc.NewMemory(c.Uint64("arena"), config)
	if err != nil {
		return nil, err
	}
	if err := mem.Attach(); err != nil {
		return nil, errors.Wrapf(err, "attach %s arena", config.MemoryType)
	}
	return mem, nil
}

// release detaches mem and removes a shared memory segment so runs do not
// leave it behind.
func release(mem memalloc.Memory) {
	if err := mem.Detach(); err != nil {
		logger.L.Warn("detach failed", "err", err)
	}
	if s, ok := mem.(*shm.Memory); ok {
		if err := s.Remove(); err != nil {
			logger.L.Warn("remove shm segment failed", "key", s.Key(), "err", err)
		}
	}
}

func workload(c *cli.Context) (harness.Workload, error) {
	order, err := harness.ParseOrder(c.String("order"))
	if err != nil {
		return harness.Workload{}, err
	}
	return harness.Workload{
		Count:       c.Int("count"),
		MaxSize:     c.Uint64("max-size"),
		Seed:        c.Int64("seed"),
		Order:       order,
		Check:       c.Bool("check"),
		Fingerprint: !c.Bool("no-verify"),
	}, nil
}

func runBackends(c *cli.Context) error {
	names := c.Args().Slice()
	if len(names) < 1 || len(names) > 2 {
		return fmt.Errorf("usage: allocbench run <backend> [<backend>]")
	}
	factories := make([]memalloc.Factory, len(names))
	for i, name := range names {
		f, err := memalloc.Lookup(name)
		if err != nil {
			return errors.Wrapf(err, "available: %s", strings.Join(memalloc.Backends(), ", "))
		}
		factories[i] = f
	}

	config, err := memoryConfig(c)
	if err != nil {
		return err
	}
	wl, err := workload(c)
	if err != nil {
		return err
	}

	var results []*harness.Result
	for i, name := range names {
		mem, err := attach(c, config)
		if err != nil {
			return err
		}
		var opts []harness.Option
		if c.Bool("dump") {
			opts = append(opts, harness.WithStepHook(func(s harness.Step, a memalloc.Allocator) {
				fmt.Fprintf(c.App.Writer, "[%s] %s #%d size %d at 0x%x\n", name, s.Op, s.Index, s.Size, uint64(s.Ptr))
				memalloc.Dump(c.App.Writer, a)
			}))
		}
		if c.Bool("progress") {
			opts = append(opts, harness.WithProgress(c.App.ErrWriter))
		}
		res, runErr := harness.Run(c.Context, name, factories[i], mem, config, wl, opts...)
		release(mem)
		if runErr != nil {
			return runErr
		}
		results = append(results, res)
	}

	report(c.App.Writer, results)
	if out := c.String("out"); out != "" {
		obs := make([]harness.Observation, len(results))
		for i, r := range results {
			obs[i] = r.Observation()
		}
		return writeObservations(out, obs)
	}
	return nil
}

// report prints one block per result with grouped digits, then a
// comparison table when more than one backend ran.
func report(w io.Writer, results []*harness.Result) {
	p := message.NewPrinter(language.English)
	for _, r := range results {
		p.Fprintf(w, "Testing allocator: %s\n", r.Backend)
		p.Fprintf(w, "Allocation completed in %.6f seconds (%d allocations)\n", r.AllocTime.Seconds(), r.Allocated)
		p.Fprintf(w, "Deallocation completed in %.6f seconds\n", r.FreeTime.Seconds())
		p.Fprintf(w, "Peak: %d bytes used, %d bytes free, %d pages\n", r.Peak.UsedBytes, r.Peak.FreeBytes, r.Peak.Pages)
		p.Fprintf(w, "Grows: %d, splits: %d, merges: %d\n", r.Final.Grows, r.Final.Splits, r.Final.Merges)
		if r.Checks > 0 {
			p.Fprintf(w, "Invariant checks passed: %d\n", r.Checks)
		}
	}
	if len(results) < 2 {
		return
	}
	p.Fprintf(w, "\n%-10s %12s %12s %14s %9s %9s\n", "backend", "alloc/op", "free/op", "consumed", "overhead", "relative")
	for _, row := range harness.Compare(results...) {
		p.Fprintf(w, "%-10s %12v %12v %14d %9.2f %9.3g\n",
			row.Backend, row.AllocOp, row.FreeOp, row.Consumed, row.Overhead, row.Relative)
	}
}

// writeObservations saves observations in JSON (possibly compressed) to a file
func writeObservations(outFile string, obs []harness.Observation) (err error) {
	file, err := os.Create(outFile)
	if err != nil {
		return errors.Wrapf(err, "could not create output file %s", outFile)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	var out io.Writer = file
	if strings.HasSuffix(outFile, ".gz") {
		zw := gzip.NewWriter(file)
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		out = zw
	}
	if err := harness.WriteObservations(out, obs); err != nil {
		return errors.Wrap(err, "could not write output")
	}
	return nil
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "benchmark one backend, or compare two",
	ArgsUsage: "<backend> [<backend>]",
	Flags:     runFlags,
	Action:    runBackends,
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list available backends",
	Action: func(c *cli.Context) error {
		for _, name := range memalloc.Backends() {
			fmt.Fprintln(c.App.Writer, name)
		}
		return nil
	},
}

var demoCommand = &cli.Command{
	Name:      "demo",
	Usage:     "store and free a few typed values through one backend",
	ArgsUsage: "<backend>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("usage: allocbench demo <backend>")
		}
		f, err := memalloc.Lookup(c.Args().First())
		if err != nil {
			return err
		}
		config, err := memoryConfig(c)
		if err != nil {
			return err
		}
		mem, err := attach(c, config)
		if err != nil {
			return err
		}
		defer release(mem)
		return demo(c.App.Writer, f, mem.Bytes(), config)
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "allocbench",
		Usage: "drive arena allocators through a randomized workload",
		Flags: globalFlags,
		Before: func(c *cli.Context) error {
			logger.Init(logger.Options{
				Enabled: c.Bool("verbose"),
				Output:  c.App.ErrWriter,
				Level:   slog.LevelDebug,
			})
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			listCommand,
			demoCommand,
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	app := newApp()
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
