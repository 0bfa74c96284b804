// Package memory implements the file-backed linear memory substrate that
// the embedded WASM engine uses as a module's WASM memory. Because the
// backing store is always an ordinary file, a snapshot of a module's state
// is just a copy of that file's bytes.
package memory

import (
	"fmt"
	"os"
)

// PageSize is the WASM page size: 64 KiB.
const PageSize = 65536

// DefaultPages is the default linear memory capacity, in WASM pages
// (≈1.18 MiB).
const DefaultPages = 18

// LinearMemory is a fixed-size, page-aligned address range backing a single
// module instance's WASM memory. It never grows: the engine's tunables
// must bind the module's declared memory limits to exactly this capacity
// at instantiation, and any guest memory.grow traps.
type LinearMemory struct {
	path string // empty for an anonymous region
	file *os.File
	data []byte
	size int
}

// Create opens (or creates) the linear memory. When path is non-empty the
// region is backed by that file: the file is created if absent, truncated
// to size, and mapped MAP_SHARED so writes are visible to any other process
// that maps the same file. When path is empty the region is anonymous
// (MAP_PRIVATE|MAP_ANON) and disappears with the process.
func Create(path string, size int) (*LinearMemory, error) {
	if size <= 0 || size%PageSize != 0 {
		return nil, fmt.Errorf("memory: size %d is not a positive multiple of the %d byte page size", size, PageSize)
	}

	if path == "" {
		return newAnonymous(size)
	}
	return newFileBacked(path, size)
}

// Definition reports the base pointer and length of the backing region, the
// shape the embedded engine's tunables need to bind a module's memory
// import to this store instead of an engine-owned allocation.
type Definition struct {
	BasePtr *byte
	Length  int
}

func (m *LinearMemory) Definition() Definition {
	if len(m.data) == 0 {
		return Definition{}
	}
	return Definition{BasePtr: &m.data[0], Length: len(m.data)}
}

// View returns the memory's current contents. The returned slice aliases
// the backing store; callers must not retain it past the next call that
// mutates or closes the LinearMemory.
func (m *LinearMemory) View() []byte { return m.data }

// ViewMut is an alias of View kept for symmetry with paired read/write
// accessors elsewhere in this runtime; Go slices carry no immutability
// of their own.
func (m *LinearMemory) ViewMut() []byte { return m.data }

// Size returns the fixed capacity of the region, in bytes.
func (m *LinearMemory) Size() int { return m.size }

// Path returns the backing file path, or "" for an anonymous region.
func (m *LinearMemory) Path() string { return m.path }

// Grow always fails: capacity is fixed at creation. It exists so callers
// have a single, named non-retryable failure to return to a guest that
// calls memory.grow.
func (m *LinearMemory) Grow(uint64) error {
	return fmt.Errorf("memory: cannot grow a fixed-capacity linear memory (size=%d)", m.size)
}

// Sync flushes a file-backed region's mapping to disk. It is a no-op for
// anonymous regions.
func (m *LinearMemory) Sync() error {
	if m.file == nil {
		return nil
	}
	return m.syncMapping()
}

// Close releases the mapping (and, for file-backed regions, the file
// handle). The LinearMemory must not be used afterwards.
func (m *LinearMemory) Close() error {
	err := m.closeMapping()
	if m.file != nil {
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
