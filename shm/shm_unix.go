//go:build (darwin && !ios) || linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (m *Memory) Attach() error {
	if m.mem != nil {
		return nil
	}

	if m.shmid == 0 {
		flag := shmAccess
		if m.createIfNotExists {
			flag |= unix.IPC_CREAT
		}
		shmid, err := unix.SysvShmGet(ipcKey(m.shmkey), int(m.bytes), flag)
		if err != nil {
			return err
		}
		m.shmid = shmid
	}

	mem, err := unix.SysvShmAttach(m.shmid, 0, 0)
	if err != nil {
		return err
	}
	if uint64(len(mem)) < m.bytes {
		_ = unix.SysvShmDetach(mem)
		return fmt.Errorf("shm: segment %s holds %d bytes, want %d", m.shmkey, len(mem), m.bytes)
	}
	m.mem = mem[:m.bytes]
	return nil
}

func (m *Memory) Detach() (err error) {
	if m.mem != nil {
		err = unix.SysvShmDetach(m.mem)
		m.mem = nil
	}
	return
}

// Remove marks the segment for deletion once every process detached.
func (m *Memory) Remove() error {
	if m.shmid == 0 {
		return nil
	}
	_, err := unix.SysvShmCtl(m.shmid, unix.IPC_RMID, nil)
	m.shmid = 0
	return err
}
