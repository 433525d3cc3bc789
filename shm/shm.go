package shm

import (
	"errors"
	"fmt"
	"hash/crc32"
)

var ErrUnsupported = errors.New("shm: shared memory not supported on this platform")

const shmAccess = 0600

func NewMemory(key string, bytes uint64, createIfNotExists bool) *Memory {
	return &Memory{
		createIfNotExists: createIfNotExists,
		shmkey:            key,
		bytes:             bytes,
	}
}

// Memory 基于操作系统共享内存实现
type Memory struct {
	createIfNotExists bool   // create shm if not exists
	shmkey            string // shared memory key
	shmid             int    // shared memory handle
	bytes             uint64 // shared memory size
	mem               []byte // attached segment
}

func (m *Memory) Key() string {
	return m.shmkey
}

func (m *Memory) Handle() int {
	return m.shmid
}

func (m *Memory) Size() uint64 {
	return m.bytes
}

func (m *Memory) Bytes() []byte {
	return m.mem
}

func (m *Memory) Travel(skipOffset uint64, fn func(offset uint64, b []byte) uint64) {
	if m.mem == nil {
		panic(fmt.Errorf("shm: travel on detached memory %s", m.shmkey))
	}
	for skipOffset < m.bytes {
		if advanceBytes := fn(skipOffset, m.mem[skipOffset:]); advanceBytes > 0 {
			skipOffset += advanceBytes
			continue
		}
		break
	}
}

// ipcKey maps the string key onto a SysV key_t.
func ipcKey(key string) int {
	return int(int32(crc32.ChecksumIEEE([]byte(key))))
}
