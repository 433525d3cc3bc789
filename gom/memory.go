package gom

import "fmt"

// Memory based on go memory
type Memory struct {
	mem   []byte
	bytes uint64
}

func NewMemory(bytes uint64) *Memory {
	return &Memory{bytes: bytes}
}

func (m *Memory) Attach() error {
	if m.mem == nil {
		m.mem = make([]byte, m.bytes)
	}
	return nil
}

func (m *Memory) Detach() error {
	m.mem = nil
	return nil
}

func (m *Memory) Bytes() []byte {
	return m.mem
}

func (m *Memory) Size() uint64 {
	return m.bytes
}

func (m *Memory) Travel(skipOffset uint64, fn func(offset uint64, b []byte) uint64) {
	if m.mem == nil {
		panic(fmt.Errorf("gom: travel on detached memory"))
	}
	for skipOffset < m.bytes {
		if advanceBytes := fn(skipOffset, m.mem[skipOffset:]); advanceBytes > 0 {
			skipOffset += advanceBytes
			continue
		}
		break
	}
}
