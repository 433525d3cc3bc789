//go:build !((darwin && !ios) || linux)

package shm

func (m *Memory) Attach() error {
	return ErrUnsupported
}

func (m *Memory) Detach() error {
	return nil
}

func (m *Memory) Remove() error {
	return nil
}
