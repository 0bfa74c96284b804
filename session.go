package hatchery

import (
	"context"
	"errors"
	"fmt"

	"github.com/herr-seppia/hatchery/ids"
)

// Session is a single caller's view onto a World: a cache of materialised
// instances, a call stack, and an event log scoped to whichever top-level
// Query or Transact is currently running.
//
// Only one top-level call across every session of a World may be in
// flight at a time; the World enforces that by holding its mutex for the
// whole top-level call. Within a call, a module calling back
// into the session via q/t/nq reenters on the same goroutine, so none of
// a session's own bookkeeping needs its own lock.
type Session struct {
	world  *World
	height uint64

	pointLimit uint64

	instances  map[ids.ModuleId]*Instance
	stack      CallStack
	current    *Instance
	callEvents []Event
}

func newSession(world *World, height uint64) *Session {
	return &Session{
		world:      world,
		height:     height,
		pointLimit: world.config.defaultLimit,
		instances:  make(map[ids.ModuleId]*Instance),
	}
}

// SetPointLimit overrides the point budget this session seats its next
// top-level call with, independently of whatever other sessions on the
// same World use and without rebuilding the World. It takes effect on
// the next Query or Transact; a call already in flight is unaffected.
func (s *Session) SetPointLimit(limit uint64) {
	s.pointLimit = limit
}

// Close drops every instance this session materialised. Persistent memory
// files and compiled guest images survive; only session-local wrappers
// are released.
func (s *Session) Close(ctx context.Context) {
	for id, inst := range s.instances {
		inst.close(ctx)
		delete(s.instances, id)
	}
}

// Query runs name on moduleID with arg, seating a fresh root frame with
// this session's configured point limit. It runs exactly as Transact does:
// memory mutations a successful query makes are not discarded, stay in the
// modules' memory files, and are captured by a later World.Commit.
func (s *Session) Query(ctx context.Context, moduleID ids.ModuleId, name string, arg []byte) (Receipt, error) {
	return s.world.runTopLevel(ctx, s, moduleID, name, arg)
}

// Transact runs name on moduleID with arg exactly as Query does; the only
// difference is semantic, since a Transact's resulting state is the kind
// of result callers subsequently persist with World.Commit.
func (s *Session) Transact(ctx context.Context, moduleID ids.ModuleId, name string, arg []byte) (Receipt, error) {
	return s.world.runTopLevel(ctx, s, moduleID, name, arg)
}

// memSnapshot is an in-process backup of one instance's memory bytes,
// used to undo a top-level call's mutations when it fails with
// OutOfPoints or a guest panic.
type memSnapshot struct {
	id   ids.ModuleId
	data []byte
}

func (s *Session) snapshotExisting() []memSnapshot {
	backups := make([]memSnapshot, 0, len(s.instances))
	for id, inst := range s.instances {
		view := inst.mem.View()
		cp := make([]byte, len(view))
		copy(cp, view)
		backups = append(backups, memSnapshot{id: id, data: cp})
	}
	return backups
}

func (s *Session) rollback(ctx context.Context, backups []memSnapshot) {
	known := make(map[ids.ModuleId]bool, len(backups))
	for _, b := range backups {
		known[b.id] = true
		if inst, ok := s.instances[b.id]; ok {
			copy(inst.mem.ViewMut(), b.data)
		}
	}
	// Any instance materialised during the failed call that didn't exist
	// beforehand is dropped entirely so the next call re-instantiates it
	// fresh rather than keeping partially-applied state around.
	for id, inst := range s.instances {
		if !known[id] {
			inst.close(ctx)
			delete(s.instances, id)
		}
	}
}

func (s *Session) instanceFor(ctx context.Context, id ids.ModuleId) (*Instance, error) {
	if inst, ok := s.instances[id]; ok {
		return inst, nil
	}

	module, ok := s.world.store.Get(id)
	if !ok {
		loaded, err := s.world.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		module = loaded
	}

	inst, err := instantiate(ctx, s.world, module, s.world.storageDir())
	if err != nil {
		return nil, err
	}

	s.instances[id] = inst
	return inst, nil
}

// classifyCallError recovers a *Error from a wazero Call error if one was
// panicked by a host import (host_panic, out-of-points); anything else is
// an ordinary guest trap.
func classifyCallError(id ids.ModuleId, err error) error {
	var herr *Error
	if errors.As(err, &herr) {
		return herr
	}
	return newError(KindRuntime, fmt.Errorf("module %s: %w", id, err))
}

// RegisterNativeQuery registers a host-native query reachable from guest
// code via the "nq" import, scoped to this session's World.
func (s *Session) RegisterNativeQuery(name string, fn NativeQueryFunc) {
	s.world.registerNativeQuery(name, fn)
}
