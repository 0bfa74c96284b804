// Package hatchery implements a deterministic execution runtime for
// sandboxed WASM modules: a session/call model with point metering, a
// content-addressed memory-snapshot engine, and a file-backed linear
// memory substrate, built on wazero as the embedded WASM engine.
package hatchery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/herr-seppia/hatchery/codec"
	"github.com/herr-seppia/hatchery/ids"
	"github.com/herr-seppia/hatchery/snapshot"
)

// World owns a set of deployed modules, their persistent memory files,
// their snapshot bags, and the commit history built from calling
// Commit. It is the unit of persistence: everything a session touches
// lives under one World's storage directory.
type World struct {
	config *Config
	dir    string

	ephemeral bool

	runtime wazero.Runtime
	store   *ModuleStore
	env     api.Module

	mu     sync.Mutex
	active *Session

	bagsMu   sync.Mutex
	bags     map[ids.ModuleId]*snapshot.Bag
	deployed []ids.ModuleId

	commitsMu sync.Mutex
	commits   map[ids.WorldCommitId]Commit
}

// NewWorld opens (or creates) a World per cfg. If cfg's storage directory
// is empty, the World is ephemeral: it creates a temporary directory and
// removes it on Close.
func NewWorld(cfg *Config) (*World, error) {
	ctx := context.Background()

	dir := cfg.storageDir
	ephemeral := dir == ""
	if ephemeral {
		tmp, err := os.MkdirTemp("", "hatchery-world-*")
		if err != nil {
			return nil, newError(KindPersistence, fmt.Errorf("create ephemeral world dir: %w", err))
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(KindPersistence, fmt.Errorf("create world dir: %w", err))
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(false))

	w := &World{
		config:    cfg,
		dir:       dir,
		ephemeral: ephemeral,
		runtime:   runtime,
		bags:      make(map[ids.ModuleId]*snapshot.Bag),
		commits:   make(map[ids.WorldCommitId]Commit),
	}
	w.store = NewModuleStore(dir, runtime)

	env, err := w.buildEnv(ctx)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}
	w.env = env

	cfg.logger.Info("world opened", slog.String("dir", dir), slog.Bool("ephemeral", ephemeral))
	return w, nil
}

// Close releases the runtime and, for an ephemeral World, removes its
// storage directory.
func (w *World) Close(ctx context.Context) error {
	w.env.Close(ctx)
	err := w.runtime.Close(ctx)
	if w.ephemeral {
		os.RemoveAll(w.dir)
	}
	return err
}

func (w *World) storageDir() string { return w.dir }

func (w *World) registerNativeQuery(name string, fn NativeQueryFunc) {
	if w.config.nativeQueryFns == nil {
		w.config.nativeQueryFns = make(map[string]NativeQueryFunc)
	}
	w.config.nativeQueryFns[name] = fn
}

// Deploy compiles and persists bytecode, returning its content-addressed
// Module. Deploying the same bytecode twice is idempotent.
func (w *World) Deploy(ctx context.Context, bytecode []byte) (*Module, error) {
	m, err := w.store.Deploy(ctx, bytecode)
	if err != nil {
		return nil, err
	}

	w.bagsMu.Lock()
	_, primed := w.bags[m.ID]
	w.bagsMu.Unlock()

	if !primed {
		if err := w.primeModule(ctx, m); err != nil {
			return nil, err
		}
		w.bagsMu.Lock()
		w.deployed = append(w.deployed, m.ID)
		sort.Slice(w.deployed, func(i, j int) bool { return ids.Less(w.deployed[i], w.deployed[j]) })
		w.bagsMu.Unlock()
	}

	w.config.logger.Info("module deployed", slog.String("module", m.ID.String()))
	return m, nil
}

// primeModule instantiates a freshly deployed module once, throwaway, so
// its exported layout (A/__heap_base) and backing memory file exist
// before any session ever addresses it, and records that initial state
// as the bag's first snapshot. Every later instantiation of the same
// bytecode reproduces byte-identical memory until a call mutates it, so
// a Commit taken before any call on this module folds in exactly the
// snapshot id a Commit taken after a later no-op call would.
func (w *World) primeModule(ctx context.Context, module *Module) error {
	inst, err := instantiate(ctx, w, module, w.dir)
	if err != nil {
		return err
	}
	defer inst.close(ctx)

	bag := w.bagFor(module.ID, module.HeapBase, module.ArgBuf)
	if _, _, err := bag.Save(); err != nil {
		return newError(KindPersistence, fmt.Errorf("prime %s: %w", module.ID, err))
	}
	return nil
}

// Session opens a new Session against this World at the given height (an
// opaque, host-assigned counter, typically a block or tick number).
func (w *World) Session(height uint64) *Session {
	return newSession(w, height)
}

func (w *World) bagFor(id ids.ModuleId, heapBase, argBuf uint32) *snapshot.Bag {
	w.bagsMu.Lock()
	defer w.bagsMu.Unlock()
	if b, ok := w.bags[id]; ok {
		return b
	}
	b := snapshot.NewBag(memoryFilePath(w.dir, id), heapBase, argBuf)
	w.bags[id] = b
	return b
}

// Commit captures every deployed module's current memory into its
// snapshot bag and folds the resulting snapshot ids into a WorldCommitId.
func (w *World) Commit() (ids.WorldCommitId, error) {
	w.bagsMu.Lock()
	modules := append([]ids.ModuleId(nil), w.deployed...)
	w.bagsMu.Unlock()

	entries := make(map[ids.ModuleId]int, len(modules))
	var worldID ids.WorldCommitId

	for _, id := range modules {
		module, ok := w.store.Get(id)
		if !ok {
			continue
		}

		bag := w.bagFor(id, module.HeapBase, module.ArgBuf)
		index, snapID, err := bag.Save()
		if err != nil {
			return ids.WorldCommitId{}, newError(KindPersistence, fmt.Errorf("commit %s: %w", id, err))
		}
		entries[id] = index
		worldID.XOR(snapID)
	}

	w.commitsMu.Lock()
	w.commits[worldID] = Commit{entries: entries}
	w.commitsMu.Unlock()

	w.config.logger.Info("world committed", slog.String("commit", worldID.String()), slog.Int("modules", len(entries)))
	return worldID, nil
}

// Restore reverts every module covered by worldID's commit to the memory
// it had at that commit by rewriting each module's memory file. Only the
// instances of a session whose call is in flight are dropped; instances
// cached by idle sessions are not evicted and keep their existing mapping
// of the memory file.
func (w *World) Restore(ctx context.Context, worldID ids.WorldCommitId) error {
	w.commitsMu.Lock()
	commit, ok := w.commits[worldID]
	w.commitsMu.Unlock()
	if !ok {
		return newError(KindSnapshotMissing, fmt.Errorf("commit %s not found", worldID))
	}

	for id, index := range commit.entries {
		module, ok := w.store.Get(id)
		if !ok {
			return newError(KindSnapshotMissing, fmt.Errorf("restore %s: module not deployed", id))
		}
		bag := w.bagFor(id, module.HeapBase, module.ArgBuf)
		if err := bag.Restore(index, memoryFilePath(w.dir, id)); err != nil {
			var invalid snapshot.ErrInvalidIndex
			if errors.As(err, &invalid) {
				return newError(KindInvalidSnapshotIndex, err)
			}
			return newError(KindPersistence, fmt.Errorf("restore %s: %w", id, err))
		}
	}

	if w.active != nil {
		w.active.Close(ctx)
		w.active.instances = make(map[ids.ModuleId]*Instance)
	}

	w.config.logger.Info("world restored", slog.String("commit", worldID.String()))
	return nil
}

// runTopLevel seats session as the World's single active session for the
// duration of one Query/Transact, runs it, and rolls back the session's
// instance memory if it fails.
func (w *World) runTopLevel(ctx context.Context, session *Session, moduleID ids.ModuleId, name string, arg []byte) (receipt Receipt, err error) {
	w.mu.Lock()
	w.active = session
	defer func() {
		w.active = nil
		w.mu.Unlock()
	}()

	backups := session.snapshotExisting()
	session.callEvents = nil

	inst, err := session.instanceFor(ctx, moduleID)
	if err != nil {
		return Receipt{}, err
	}

	limit := session.pointLimit
	session.stack.Push(moduleID, limit)
	inst.remainingPoints = limit
	session.current = inst

	defer func() {
		if r := recover(); r != nil {
			err = asError(moduleID, r)
		}
		if err != nil {
			session.rollback(ctx, backups)
			session.stack = CallStack{}
			session.current = nil
		}
	}()

	argLen := inst.writeArg(arg)
	retLen, callErr := inst.call(ctx, name, argLen)
	if callErr != nil {
		return Receipt{}, callErr
	}
	ret := inst.readArg(retLen)

	used := limit - inst.remainingPoints
	session.stack.Pop()
	session.current = nil
	events := session.callEvents
	session.callEvents = nil

	return Receipt{Ret: ret, Events: events, PointsUsed: used}, nil
}

func asError(moduleID ids.ModuleId, r interface{}) error {
	if err, ok := r.(error); ok {
		return classifyCallError(moduleID, err)
	}
	return newError(KindRuntime, fmt.Errorf("module %s: panic: %v", moduleID, r))
}

// buildEnv compiles and instantiates the single "env" host module every
// guest imports from: alloc/dealloc/q/t/nq/emit/caller/limit/spent/
// host_debug/host_panic. One instance serves the whole World; host
// functions dispatch against whichever Session is currently active.
func (w *World) buildEnv(ctx context.Context) (api.Module, error) {
	b := w.runtime.NewHostModuleBuilder("env")

	b.NewFunctionBuilder().WithFunc(w.hostAlloc).Export("alloc")
	b.NewFunctionBuilder().WithFunc(w.hostDealloc).Export("dealloc")
	b.NewFunctionBuilder().WithFunc(w.hostQuery).Export("q")
	b.NewFunctionBuilder().WithFunc(w.hostQuery).Export("t")
	b.NewFunctionBuilder().WithFunc(w.hostNativeQuery).Export("nq")
	b.NewFunctionBuilder().WithFunc(w.hostEmit).Export("emit")
	b.NewFunctionBuilder().WithFunc(w.hostCaller).Export("caller")
	b.NewFunctionBuilder().WithFunc(w.hostLimit).Export("limit")
	b.NewFunctionBuilder().WithFunc(w.hostSpent).Export("spent")
	b.NewFunctionBuilder().WithFunc(w.hostDebug).Export("host_debug")
	b.NewFunctionBuilder().WithFunc(w.hostPanic).Export("host_panic")

	compiled, err := b.Compile(ctx)
	if err != nil {
		return nil, newError(KindCompile, fmt.Errorf("compile env host module: %w", err))
	}
	return w.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("env"))
}

func (w *World) hostAlloc(ctx context.Context, size, align uint32) uint32 {
	return w.active.current.bumpAlloc(size, align)
}

func (w *World) hostDealloc(ctx context.Context, addr uint32) {
	// The bump allocator never frees; matches the allocation design note.
}

// hostQuery backs both the "q" and "t" imports: mechanically identical.
// The distinction between query and transact is made by the caller of
// Session.Query/Session.Transact, not by this protocol step.
func (w *World) hostQuery(ctx context.Context, modIDPtr, namePtr, nameLen, argLen uint32) uint32 {
	s := w.active
	caller := s.current

	idBytes, ok := caller.guest.Memory().Read(modIDPtr, ids.Size)
	if !ok {
		panic(newError(KindRuntime, fmt.Errorf("module %s: q/t: module id out of bounds", caller.id)))
	}
	calleeID, ok := ids.ModuleIdFromBytes(idBytes)
	if !ok {
		panic(newError(KindRuntime, fmt.Errorf("module %s: q/t: malformed module id", caller.id)))
	}

	nameBytes, ok := caller.guest.Memory().Read(namePtr, nameLen)
	if !ok || !utf8.Valid(nameBytes) {
		panic(newError(KindRuntime, fmt.Errorf("module %s: q/t: invalid entry name", caller.id)))
	}
	name := string(nameBytes)

	remaining := caller.remainingPoints
	if remaining == 0 {
		panic(OutOfPoints(calleeID))
	}
	passed := remaining * PointPassPercentage / 100

	s.stack.Push(calleeID, passed)
	callee, err := s.instanceFor(ctx, calleeID)
	if err != nil {
		panic(err)
	}

	argBytes := caller.readArg(argLen)
	n := callee.writeArg(argBytes)
	callee.remainingPoints = passed

	s.current = callee
	retLen, callErr := callee.call(ctx, name, n)
	s.current = caller
	if callErr != nil {
		panic(callErr)
	}

	used := passed - callee.remainingPoints
	caller.remainingPoints = remaining - used
	s.stack.Pop()

	retBytes := callee.readArg(retLen)
	return caller.writeArg(retBytes)
}

func (w *World) hostNativeQuery(ctx context.Context, namePtr, nameLen, argLen uint32) uint32 {
	caller := w.active.current
	nameBytes, ok := caller.guest.Memory().Read(namePtr, nameLen)
	if !ok || !utf8.Valid(nameBytes) {
		panic(newError(KindRuntime, fmt.Errorf("module %s: nq: invalid name", caller.id)))
	}
	name := string(nameBytes)

	fn, ok := w.config.nativeQueryFns[name]
	if !ok {
		panic(newError(KindMissingExport, fmt.Errorf("module %s: nq: unknown native query %q", caller.id, name)))
	}

	argBuf, _ := caller.guest.Memory().Read(caller.argBuf, caller.argLen)
	replyLen, err := fn(argBuf, argLen)
	if err != nil {
		panic(newError(KindRuntime, fmt.Errorf("module %s: nq %q: %w", caller.id, name, err)))
	}
	return replyLen
}

func (w *World) hostEmit(ctx context.Context, argLen uint32) {
	s := w.active
	caller := s.current
	data := caller.readArg(argLen)
	s.callEvents = append(s.callEvents, Event{Module: caller.id, Data: data})
}

func (w *World) hostCaller(ctx context.Context) uint32 {
	s := w.active
	var id ids.ModuleId
	if f, ok := s.stack.Caller(); ok {
		id = f.Module
	}
	return s.current.writeArg(id[:])
}

func (w *World) hostLimit(ctx context.Context) uint32 {
	s := w.active
	f, _ := s.stack.Top()
	var scratch [8]byte
	codec.EncodeUint64(scratch[:], f.Limit)
	return s.current.writeArg(scratch[:])
}

func (w *World) hostSpent(ctx context.Context) uint32 {
	s := w.active
	f, _ := s.stack.Top()
	spent := f.Limit - s.current.remainingPoints
	var scratch [8]byte
	codec.EncodeUint64(scratch[:], spent)
	return s.current.writeArg(scratch[:])
}

func (w *World) hostDebug(ctx context.Context, ptr, length uint32) {
	caller := w.active.current
	data, _ := caller.guest.Memory().Read(ptr, length)
	w.config.logger.Debug("host_debug", slog.String("module", caller.id.String()), slog.String("message", string(data)))
}

func (w *World) hostPanic(ctx context.Context, ptr, length uint32) {
	caller := w.active.current
	data, _ := caller.guest.Memory().Read(ptr, length)
	panic(GuestPanic(caller.id, string(data)))
}
