package hatchery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/herr-seppia/hatchery/ids"
)

// Module is a deployed, compiled artifact: bytecode identified by the
// blake3 hash of its contents, ready to be instantiated by any number of
// sessions.
type Module struct {
	ID       ids.ModuleId
	Bytecode []byte
	compiled wazero.CompiledModule

	// Layout is filled in on first instantiation: the module's exported
	// A (argbuf offset), __heap_base, and the argbuf length the host
	// agrees to use with it.
	layoutKnown bool
	HeapBase    uint32
	ArgBuf      uint32
	ArgLen      uint32
}

// SetLayout records a module's guest-exported layout once it has been
// learned from a real instantiation. Safe to call more than once; later
// calls are no-ops once the layout is known, since it is a property of
// the bytecode, not of any particular instance.
func (m *Module) SetLayout(heapBase, argBuf, argLen uint32) {
	if m.layoutKnown {
		return
	}
	m.HeapBase, m.ArgBuf, m.ArgLen = heapBase, argBuf, argLen
	m.layoutKnown = true
}

// LayoutKnown reports whether SetLayout has been called for this module.
func (m *Module) LayoutKnown() bool { return m.layoutKnown }

// ModuleStore deploys and caches compiled modules, keyed by the
// content hash of their bytecode. Deploying the same bytecode twice is a
// no-op: the store is idempotent.
type ModuleStore struct {
	dir     string
	runtime wazero.Runtime

	mu      sync.Mutex
	modules map[ids.ModuleId]*Module
}

// NewModuleStore opens a store rooted at dir, using rt to compile
// incoming bytecode. rt outlives the store; the store never closes it.
func NewModuleStore(dir string, rt wazero.Runtime) *ModuleStore {
	return &ModuleStore{
		dir:     dir,
		runtime: rt,
		modules: make(map[ids.ModuleId]*Module),
	}
}

// Deploy compiles bytecode (if not already known) and persists a copy of
// it under the store's directory, named by its content hash. Deploying
// identical bytecode more than once returns the same Module without
// recompiling.
func (s *ModuleStore) Deploy(ctx context.Context, bytecode []byte) (*Module, error) {
	id := ids.HashModule(bytecode)

	s.mu.Lock()
	if m, ok := s.modules[id]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	compiled, err := s.runtime.CompileModule(ctx, bytecode)
	if err != nil {
		return nil, newError(KindCompile, err)
	}

	path := s.bytecodePath(id)
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, bytecode, 0o644); err != nil {
			return nil, newError(KindPersistence, fmt.Errorf("deploy %s: %w", id, err))
		}
	}

	m := &Module{ID: id, Bytecode: bytecode, compiled: compiled}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.modules[id]; ok {
		return existing, nil
	}
	s.modules[id] = m
	return m, nil
}

// Get returns a previously deployed module by id.
func (s *ModuleStore) Get(id ids.ModuleId) (*Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	return m, ok
}

// Load reads previously persisted bytecode for id off disk and compiles
// it, populating the store's in-memory cache. Used when resuming a World
// that already has modules deployed on a prior run.
func (s *ModuleStore) Load(ctx context.Context, id ids.ModuleId) (*Module, error) {
	if m, ok := s.Get(id); ok {
		return m, nil
	}
	bytecode, err := os.ReadFile(s.bytecodePath(id))
	if err != nil {
		return nil, newError(KindPersistence, fmt.Errorf("load %s: %w", id, err))
	}
	return s.Deploy(ctx, bytecode)
}

func (s *ModuleStore) bytecodePath(id ids.ModuleId) string {
	return filepath.Join(s.dir, id.String()+".wasm")
}
