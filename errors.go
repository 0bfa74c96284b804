package hatchery

import (
	"fmt"

	"github.com/herr-seppia/hatchery/ids"
)

// ErrorKind classifies every failure this package can return, per the
// closed error-kind set: callers may switch on it instead of matching
// message strings.
type ErrorKind int

const (
	// KindCompile means a module's bytecode failed to compile.
	KindCompile ErrorKind = iota
	// KindInstantiate means a compiled module failed to instantiate
	// (missing import, start-function trap, ...).
	KindInstantiate
	// KindMissingExport means a module lacks a required export (the "A"
	// argument-buffer pointer global, SELF_ID, __heap_base, or the call
	// entrypoint a session tried to invoke).
	KindMissingExport
	// KindRuntime means a guest trapped during a call for a reason other
	// than an explicit host_panic or point exhaustion (e.g. an
	// out-of-bounds memory access).
	KindRuntime
	// KindOutOfPoints means a call exhausted its point budget.
	KindOutOfPoints
	// KindGuestPanic means a guest invoked host_panic with a message.
	KindGuestPanic
	// KindInvalidSnapshotIndex means a world or bag restore was asked for
	// a snapshot index that does not exist.
	KindInvalidSnapshotIndex
	// KindSnapshotMissing means a restore named a world commit id with no
	// recorded commit, or a commit covering a module that is not deployed.
	KindSnapshotMissing
	// KindPersistence means an I/O error occurred reading or writing
	// module bytecode, memory files, or snapshots.
	KindPersistence
	// KindCodec means an argument buffer could not be encoded or decoded
	// in the fixed layout a host or guest expected.
	KindCodec
)

func (k ErrorKind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindInstantiate:
		return "instantiate"
	case KindMissingExport:
		return "missing_export"
	case KindRuntime:
		return "runtime"
	case KindOutOfPoints:
		return "out_of_points"
	case KindGuestPanic:
		return "guest_panic"
	case KindInvalidSnapshotIndex:
		return "invalid_snapshot_index"
	case KindSnapshotMissing:
		return "snapshot_missing"
	case KindPersistence:
		return "persistence"
	case KindCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// Error is the single error type every exported operation in this package
// returns. It carries a closed Kind plus whatever module/message context
// applies to that kind.
type Error struct {
	Kind     ErrorKind
	ModuleId ids.ModuleId // set for OutOfPoints, GuestPanic
	Message  string       // set for GuestPanic
	Err      error        // wrapped cause, if any
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindOutOfPoints:
		return fmt.Sprintf("hatchery: module %s exhausted its point budget", e.ModuleId)
	case KindGuestPanic:
		return fmt.Sprintf("hatchery: module %s panicked: %s", e.ModuleId, e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("hatchery: %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("hatchery: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// OutOfPoints constructs the error a call raises when it exhausts its
// point budget mid-execution.
func OutOfPoints(module ids.ModuleId) *Error {
	return &Error{Kind: KindOutOfPoints, ModuleId: module}
}

// GuestPanic constructs the error a call raises when the guest invokes
// host_panic with message.
func GuestPanic(module ids.ModuleId, message string) *Error {
	return &Error{Kind: KindGuestPanic, ModuleId: module, Message: message}
}
