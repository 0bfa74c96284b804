package snapshot

import (
	"fmt"
	"os"

	"github.com/herr-seppia/hatchery/ids"
)

// ErrInvalidIndex is returned by Bag.Restore when asked for an index that
// does not exist in the chain.
type ErrInvalidIndex struct{ Index, Len int }

func (e ErrInvalidIndex) Error() string {
	return fmt.Sprintf("snapshot: invalid snapshot index %d (bag has %d entries)", e.Index, e.Len)
}

// Bag is the per-module chain of snapshots: an uncompressed base at index
// 0, compressed deltas at every later index, and a materialised
// uncompressed "top" copy of the latest version so capture only ever has
// to diff against a single base file rather than recomputing from index 0
// every time.
type Bag struct {
	memoryFile           string
	heapBase, argBufBase uint32

	ids  []ids.SnapshotId
	top  string // stable filename holding the uncompressed latest version
	accu string // scratch filename used while materialising a restore
}

// NewBag opens the snapshot bag for a module whose live memory lives at
// memoryFile. heapBase and argBufOffset are the module's exported
// __heap_base and A globals, needed to compute content hashes the same way
// Capture/CaptureDiff do.
func NewBag(memoryFile string, heapBase, argBufOffset uint32) *Bag {
	return &Bag{
		memoryFile: memoryFile,
		heapBase:   heapBase,
		argBufBase: argBufOffset,
		top:        memoryFile + "_top",
		accu:       memoryFile + "_accu",
	}
}

// Len reports how many snapshots the bag holds.
func (b *Bag) Len() int { return len(b.ids) }

// IDs returns the bag's snapshot ids in insertion order. The slice is a
// copy; callers may not mutate the bag through it.
func (b *Bag) IDs() []ids.SnapshotId {
	out := make([]ids.SnapshotId, len(b.ids))
	copy(out, b.ids)
	return out
}

// Save captures the module's current memory into the bag, returning the
// index it was stored at. The first save in a bag's lifetime is always
// stored uncompressed as index 0; every later save is stored as a
// compressed delta against the bag's materialised "top".
func (b *Bag) Save() (index int, id ids.SnapshotId, err error) {
	if len(b.ids) == 0 {
		snap, err := Capture(b.memoryFile, b.heapBase, b.argBufBase)
		if err != nil {
			return 0, ids.SnapshotId{}, err
		}
		if err := copyFile(b.memoryFile, b.top); err != nil {
			return 0, ids.SnapshotId{}, err
		}
		b.ids = append(b.ids, snap.ID)
		return 0, snap.ID, nil
	}

	if err := copyFile(b.memoryFile, b.accu); err != nil {
		return 0, ids.SnapshotId{}, err
	}

	topSnap := Snapshot{Path: b.top}
	delta, err := CaptureDiff(topSnap, b.memoryFile, b.heapBase, b.argBufBase)
	if err != nil {
		return 0, ids.SnapshotId{}, err
	}

	if err := copyFile(b.accu, b.top); err != nil {
		return 0, ids.SnapshotId{}, err
	}

	b.ids = append(b.ids, delta.ID)
	return len(b.ids) - 1, delta.ID, nil
}

// Restore materialises the version stored at index into memoryFile,
// truncating it first.
func (b *Bag) Restore(index int, memoryFile string) error {
	if index < 0 || index >= len(b.ids) {
		return ErrInvalidIndex{Index: index, Len: len(b.ids)}
	}

	base := Snapshot{Path: PathFor(b.memoryFile, b.ids[0])}

	switch {
	case index == 0 || len(b.ids) == 1:
		return Restore(base, memoryFile)
	case index == len(b.ids)-1:
		return Restore(Snapshot{Path: b.top}, memoryFile)
	default:
		accu := Snapshot{Path: b.accu}
		first := Snapshot{Path: PathFor(b.memoryFile, b.ids[1]), Compressed: true}
		if err := DecompressAndPatch(first, base, b.accu); err != nil {
			return err
		}
		for i := 2; i <= index; i++ {
			next := Snapshot{Path: PathFor(b.memoryFile, b.ids[i]), Compressed: true}
			if err := DecompressAndPatch(next, accu, b.accu); err != nil {
				return err
			}
		}
		return Restore(accu, memoryFile)
	}
}

// Remove deletes the bag's scratch files (top/accu). Content-addressed
// snapshot files themselves are never removed: a committed snapshot file's
// name is its hash and is never rewritten.
func (b *Bag) Remove() {
	os.Remove(b.top)
	os.Remove(b.accu)
}
