package snapshot

// staticImageSkip is the size of the leading region of a module's memory
// that holds the immutable compiled image and never changes across calls;
// it is excluded from the hashed region so content addressing reflects
// state, not code.
const staticImageSkip = 1 << 20

// heapPrefixSkip is the number of bytes at the start of the guest heap that
// the allocator uses as private metadata and that mutate on every call
// regardless of observable state.
const heapPrefixSkip = 4

// RelevantBytes assembles the contiguous, deterministically-ordered byte
// sequence that a module's SnapshotId is hashed over: the state region
// between the static image and the argument buffer, followed by the heap
// region from just past the allocator's private prefix to the end of
// memory. The argument buffer itself is always excluded, so writes to it
// between commits never change a module's content hash (see property S6
// in the testable-properties list).
func RelevantBytes(mem []byte, heapBase, argBufOffset uint32) []byte {
	var out []byte

	if int(argBufOffset) > staticImageSkip && staticImageSkip <= len(mem) {
		end := int(argBufOffset)
		if end > len(mem) {
			end = len(mem)
		}
		out = append(out, mem[staticImageSkip:end]...)
	}

	heapStart := int(heapBase) + heapPrefixSkip
	if heapStart < len(mem) {
		out = append(out, mem[heapStart:]...)
	}

	return out
}
