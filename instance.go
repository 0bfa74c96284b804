package hatchery

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/herr-seppia/hatchery/ids"
	"github.com/herr-seppia/hatchery/memory"
)

// Instance is a module materialised against one session: a live guest
// module, its backing linear memory, and the bookkeeping (argbuf
// location, heap bump pointer, remaining points) a call needs. Instances
// are session-scoped: never shared across sessions, at most one in-flight
// call at a time.
type Instance struct {
	id ids.ModuleId

	guest    api.Module
	mem      *memory.LinearMemory
	argBuf   uint32
	argLen   uint32
	heapBase uint32

	heapNext        uint32
	remainingPoints uint64
}

// memoryFilePath is the conventional on-disk name for a module's live
// linear memory within a world's storage directory.
func memoryFilePath(dir string, id ids.ModuleId) string {
	return filepath.Join(dir, id.String())
}

// instantiate materialises module against world, binding its guest
// memory to a LinearMemory file under dir so that the memory is always
// backed by a real file: the same bytes a later Capture/CaptureDiff
// will read. The returned Instance is not tied to any particular
// session: World.Deploy uses this to prime a module's layout and
// backing file before any session ever touches it, and Session uses it
// identically to materialise a module a call addresses for the first
// time.
func instantiate(ctx context.Context, world *World, module *Module, dir string) (*Instance, error) {
	path := memoryFilePath(dir, module.ID)

	pages := world.config.pages
	mem, err := memory.Create(path, pages*memory.PageSize)
	if err != nil {
		return nil, newError(KindPersistence, fmt.Errorf("instantiate %s: %w", module.ID, err))
	}

	alloc := &pinnedMemoryAllocator{mem: mem}
	ctx = experimental.WithMemoryAllocator(ctx, alloc)

	modCfg := wazero.NewModuleConfig().WithName(module.ID.String())
	guest, err := world.runtime.InstantiateModule(ctx, module.compiled, modCfg)
	if err != nil {
		mem.Close()
		return nil, newError(KindInstantiate, fmt.Errorf("instantiate %s: %w", module.ID, err))
	}

	argBufGlobal := guest.ExportedGlobal("A")
	selfIDGlobal := guest.ExportedGlobal("SELF_ID")
	heapBaseGlobal := guest.ExportedGlobal("__heap_base")
	if argBufGlobal == nil || selfIDGlobal == nil || heapBaseGlobal == nil {
		guest.Close(ctx)
		mem.Close()
		return nil, newError(KindMissingExport, fmt.Errorf("module %s missing A/SELF_ID/__heap_base", module.ID))
	}

	argBuf := uint32(argBufGlobal.Get())
	heapBase := uint32(heapBaseGlobal.Get())
	module.SetLayout(heapBase, argBuf, DefaultArgBufLen)

	selfIDAddr := uint32(selfIDGlobal.Get())
	if !guest.Memory().Write(selfIDAddr, module.ID[:]) {
		guest.Close(ctx)
		mem.Close()
		return nil, newError(KindInstantiate, fmt.Errorf("module %s: SELF_ID out of bounds", module.ID))
	}

	return &Instance{
		id:       module.ID,
		guest:    guest,
		mem:      mem,
		argBuf:   argBuf,
		argLen:   module.ArgLen,
		heapBase: heapBase,
		heapNext: heapBase,
	}, nil
}

func (i *Instance) close(ctx context.Context) {
	i.guest.Close(ctx)
	i.mem.Close()
}

// writeArg copies data into the instance's argbuf, truncating to the
// buffer's capacity.
func (i *Instance) writeArg(data []byte) uint32 {
	n := uint32(len(data))
	if n > i.argLen {
		n = i.argLen
	}
	i.guest.Memory().Write(i.argBuf, data[:n])
	return n
}

// readArg reads n bytes back out of the instance's argbuf.
func (i *Instance) readArg(n uint32) []byte {
	if n > i.argLen {
		n = i.argLen
	}
	buf, _ := i.guest.Memory().Read(i.argBuf, n)
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

// callPointCost is the host-level charge debited from an instance's
// remaining points for a single exported-function invocation: a flat
// dispatch cost plus a per-byte charge for the argument data the host
// copies into the call. This is the runtime's substitute for the
// bytecode-level instruction metering a JIT-based engine would inject;
// wazero's FunctionListener hook that could approximate the latter is
// interpreter-only, so every export call is charged here instead,
// uniformly across whichever engine the embedding runtime configures.
func callPointCost(argLen uint32) uint64 {
	return BaseCallPointCost + uint64(argLen)*ArgBytePointCost
}

// call invokes the named export with arg_len bytes already staged in the
// argbuf, returning ret_len. The invocation is charged against the
// instance's remaining points before the guest code runs; a call that
// cannot afford its own dispatch cost never enters the guest at all.
func (i *Instance) call(ctx context.Context, name string, argLen uint32) (uint32, error) {
	fn := i.guest.ExportedFunction(name)
	if fn == nil {
		return 0, newError(KindMissingExport, fmt.Errorf("module %s missing export %q", i.id, name))
	}

	cost := callPointCost(argLen)
	if i.remainingPoints < cost {
		return 0, OutOfPoints(i.id)
	}
	i.remainingPoints -= cost

	results, err := fn.Call(ctx, uint64(argLen))
	if err != nil {
		return 0, classifyCallError(i.id, err)
	}
	return uint32(results[0]), nil
}

// bumpAlloc implements the alloc host import: a non-compacting bump
// pointer into the region past __heap_base. It never reclaims space, so
// a module that allocates without bound eventually exhausts its heap and
// the call panics.
func (i *Instance) bumpAlloc(size, align uint32) uint32 {
	if align == 0 {
		align = 1
	}
	addr := (i.heapNext + align - 1) &^ (align - 1)
	end := addr + size
	if int(end) > i.mem.Size() {
		panic(newError(KindRuntime, fmt.Errorf("module %s: heap exhausted", i.id)))
	}
	i.heapNext = end
	return addr
}

// pinnedMemoryAllocator adapts a memory.LinearMemory to wazero's
// experimental.MemoryAllocator hook, so that a guest's linear memory is
// always the bytes of our file-backed mapping rather than memory wazero
// would otherwise allocate itself.
type pinnedMemoryAllocator struct {
	mem *memory.LinearMemory
}

func (a *pinnedMemoryAllocator) Make(min, cap, max uint64) []byte {
	view := a.mem.ViewMut()
	if uint64(len(view)) < min {
		panic(newError(KindInstantiate, fmt.Errorf("backing memory smaller than requested minimum: have %d, need %d", len(view), min)))
	}
	return view
}

func (a *pinnedMemoryAllocator) Grow(size uint64) []byte {
	// Fixed-capacity by design (memory.LinearMemory.Grow always errors);
	// the file is already sized to the module's configured page count.
	return a.mem.ViewMut()
}

func (a *pinnedMemoryAllocator) Free() {}
