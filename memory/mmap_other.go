//go:build !linux && !darwin && !freebsd

package memory

import "os"

// On platforms without a wired mmap syscall, the region is a plain byte
// slice that is read from / flushed to the backing file explicitly. This
// keeps the exported contract (view/view_mut/definition) identical; it
// loses true MAP_SHARED visibility to other processes, which this runtime
// never relies on (a module's memory file is only ever touched by its own
// live Instance, per the concurrency model).
func newAnonymous(size int) (*LinearMemory, error) {
	return &LinearMemory{data: make([]byte, size), size: size}, nil
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
	data := make([]byte, size)
	// A freshly truncated file reads back as zeros; ignore a plain EOF.
	if _, err := f.ReadAt(data, 0); err != nil && err.Error() != "EOF" {
		f.Close()
		return nil, err
	}
	return &LinearMemory{path: path, file: f, data: data, size: size}, nil
}

func (m *LinearMemory) syncMapping() error {
	_, err := m.file.WriteAt(m.data, 0)
	if err != nil {
		return err
	}
	return m.file.Sync()
}

func (m *LinearMemory) closeMapping() error {
	if m.file == nil {
		return nil
	}
	return m.syncMapping()
}
