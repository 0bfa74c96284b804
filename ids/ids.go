// Package ids defines the content-addressed identifiers shared across the
// runtime: module ids, per-module snapshot ids, and the world commit id
// folded from them.
package ids

import (
	"bytes"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Size is the length, in bytes, of every id in this package.
const Size = 32

// ModuleId is the hash of a module's bytecode. It totally orders by byte
// comparison and is immutable once a module is deployed.
type ModuleId [Size]byte

// SnapshotId is the content hash of the relevant bytes of a module's linear
// memory at the moment it was captured.
type SnapshotId [Size]byte

// WorldCommitId is the XOR-fold of every SnapshotId committed together. The
// fold is order-independent, matching the requirement that a commit's id
// does not depend on module iteration order.
type WorldCommitId [Size]byte

// Zero is the well-known uninitialised ModuleId, written as the "caller" of
// a root call-stack frame.
var Zero ModuleId

func (m ModuleId) IsZero() bool { return m == Zero }

func (m ModuleId) Bytes() []byte { return m[:] }

func (m ModuleId) String() string { return hex.EncodeToString(m[:]) }

// Compare gives the total order over ModuleId required by the data model:
// plain byte comparison.
func Compare(a, b ModuleId) int { return bytes.Compare(a[:], b[:]) }

// Less reports whether a sorts before b, for use with sort.Slice and
// friends.
func Less(a, b ModuleId) bool { return Compare(a, b) < 0 }

func ModuleIdFromBytes(b []byte) (ModuleId, bool) {
	var id ModuleId
	if len(b) != Size {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

// HashModule computes the ModuleId of a module's bytecode.
func HashModule(bytecode []byte) ModuleId {
	return ModuleId(blake3.Sum256(bytecode))
}

func (s SnapshotId) Bytes() []byte { return s[:] }

func (s SnapshotId) String() string { return hex.EncodeToString(s[:]) }

func (s SnapshotId) IsZero() bool { return s == SnapshotId{} }

// HashBytes computes the SnapshotId of the relevant bytes of a module's
// memory, per spec: a single contiguous hash over the bytes the caller
// hands it (the caller is responsible for assembling the "state region
// then heap region" ordering required by the snapshot engine).
func HashBytes(relevant []byte) SnapshotId {
	return SnapshotId(blake3.Sum256(relevant))
}

// XOR folds snapshot ids into a WorldCommitId. Folding is commutative and
// associative, so the result does not depend on the order modules are
// visited in.
func (w *WorldCommitId) XOR(s SnapshotId) {
	for i := range w {
		w[i] ^= s[i]
	}
}

func WorldCommitIdFromBytes(b []byte) (WorldCommitId, bool) {
	var id WorldCommitId
	if len(b) != Size {
		return id, false
	}
	copy(id[:], b)
	return id, true
}

func (w WorldCommitId) Bytes() []byte { return w[:] }

func (w WorldCommitId) String() string { return hex.EncodeToString(w[:]) }
