//go:build linux || darwin || freebsd

package memory

import (
	"os"

	"golang.org/x/sys/unix"
)

func newAnonymous(size int) (*LinearMemory, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &LinearMemory{data: data, size: size}, nil
}

func newFileBacked(path string, size int) (*LinearMemory, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &LinearMemory{path: path, file: f, data: data, size: size}, nil
}

func (m *LinearMemory) syncMapping() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *LinearMemory) closeMapping() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}
