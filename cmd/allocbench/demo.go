package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/leslie-fei/memalloc"
)

// demo allocates an int, a float, a double and an int array, writes each
// and frees it again. The first failed allocation ends the demo.
func demo(w io.Writer, f memalloc.Factory, mem []byte, config *memalloc.Config) error {
	a, err := f(mem, config)
	if err != nil {
		return errors.Wrap(err, "failed to initialize allocator")
	}
	le := binary.LittleEndian

	alloc := func(what string, size uint64) (memalloc.Ptr, error) {
		p, err := a.Alloc(size)
		if err != nil {
			fmt.Fprintf(w, "Memory allocation failed: %s\n", what)
			a.Destroy()
			return memalloc.Nil, errors.Wrapf(err, "allocate %s of %d bytes", what, size)
		}
		return p, nil
	}

	p, err := alloc("integer", 4)
	if err != nil {
		return err
	}
	le.PutUint32(a.Bytes(p, 4), 123)
	fmt.Fprintf(w, "Memory block allocated: integer with value %d\n", int32(le.Uint32(a.Bytes(p, 4))))
	a.Free(p)
	fmt.Fprintln(w, "Memory block freed: integer")

	if p, err = alloc("float", 4); err != nil {
		return err
	}
	le.PutUint32(a.Bytes(p, 4), math.Float32bits(456.78))
	fmt.Fprintf(w, "Memory block allocated: float with value %.2f\n", math.Float32frombits(le.Uint32(a.Bytes(p, 4))))
	a.Free(p)
	fmt.Fprintln(w, "Memory block freed: float")

	if p, err = alloc("double", 8); err != nil {
		return err
	}
	le.PutUint64(a.Bytes(p, 8), math.Float64bits(789.123))
	fmt.Fprintf(w, "Memory block allocated: double with value %.3f\n", math.Float64frombits(le.Uint64(a.Bytes(p, 8))))
	a.Free(p)
	fmt.Fprintln(w, "Memory block freed: double")

	if p, err = alloc("integer array", 10*4); err != nil {
		return err
	}
	arr := a.Bytes(p, 10*4)
	for i := 0; i < 10; i++ {
		le.PutUint32(arr[i*4:], uint32(i))
	}
	fmt.Fprintln(w, "Memory block allocated: integer array")
	a.Free(p)
	fmt.Fprintln(w, "Memory block freed: integer array")

	a.Destroy()
	fmt.Fprintln(w, "Allocator destroyed")
	return nil
}
