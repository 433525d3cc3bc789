// Package mmap provides a file backed region, so an arena can be inspected
// from outside the process or survive it.
package mmap

import (
	"fmt"
	"os"

	mmapgo "github.com/edsrzf/mmap-go"
)

type Memory struct {
	filepath string
	bytes    uint64
	file     *os.File
	mmap     mmapgo.MMap
}

func NewMemory(filepath string, bytes uint64) *Memory {
	return &Memory{filepath: filepath, bytes: bytes}
}

func (m *Memory) Attach() (err error) {
	if m.mmap != nil {
		return nil
	}

	m.file, err = os.OpenFile(m.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}

	if err = m.file.Truncate(int64(m.bytes)); err != nil {
		_ = m.file.Close()
		return err
	}

	m.mmap, err = mmapgo.MapRegion(m.file, int(m.bytes), mmapgo.RDWR, 0, 0)
	if err != nil {
		_ = m.file.Close()
		return err
	}

	return
}

func (m *Memory) Detach() error {
	if m.mmap != nil {
		if err := m.mmap.Unmap(); err != nil {
			return err
		}
		m.mmap = nil
	}

	if m.file != nil {
		if err := m.file.Close(); err != nil {
			return err
		}
		m.file = nil
	}

	return nil
}

// Flush writes dirty pages back to the file.
func (m *Memory) Flush() error {
	if m.mmap == nil {
		return nil
	}
	return m.mmap.Flush()
}

func (m *Memory) Bytes() []byte {
	return m.mmap
}

func (m *Memory) Size() uint64 {
	return m.bytes
}

func (m *Memory) Travel(skipOffset uint64, fn func(offset uint64, b []byte) uint64) {
	if m.mmap == nil {
		panic(fmt.Errorf("mmap: travel on detached memory %s", m.filepath))
	}
	for skipOffset < m.bytes {
		if advanceBytes := fn(skipOffset, m.mmap[skipOffset:]); advanceBytes > 0 {
			skipOffset += advanceBytes
			continue
		}
		break
	}
}
