// Package snapshot implements the single-module snapshot engine: capturing
// a module's linear memory into a content-addressed file, diffing it
// against a base snapshot with a compressed bsdiff-class delta, and
// restoring either form back onto a live memory file.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
	"github.com/klauspost/compress/zstd"

	"github.com/herr-seppia/hatchery/ids"
)

// compressionLevel is the zstd compression level CaptureDiff's compressed
// snapshot format uses.
const compressionLevel = 11

// Snapshot names a captured image of a module's memory: either the
// uncompressed base/top copy, or a compressed delta against a base.
type Snapshot struct {
	ID         ids.SnapshotId
	Path       string
	Compressed bool
}

// Capture reads memoryFile, computes its content hash over the relevant
// bytes (state region + heap region, per RelevantBytes), and copies the
// full file to a new snapshot path named after that hash.
func Capture(memoryFile string, heapBase, argBufOffset uint32) (Snapshot, error) {
	mem, err := os.ReadFile(memoryFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read memory: %w", err)
	}

	id := ids.HashBytes(RelevantBytes(mem, heapBase, argBufOffset))
	path := PathFor(memoryFile, id)

	if err := copyFile(memoryFile, path); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: id, Path: path}, nil
}

// CaptureDiff computes the same content hash as Capture, but persists the
// snapshot as a compressed bsdiff delta against base rather than a full
// copy.
func CaptureDiff(base Snapshot, memoryFile string, heapBase, argBufOffset uint32) (Snapshot, error) {
	mem, err := os.ReadFile(memoryFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read memory: %w", err)
	}
	baseBytes, err := os.ReadFile(base.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read base %s: %w", base.Path, err)
	}

	id := ids.HashBytes(RelevantBytes(mem, heapBase, argBufOffset))
	path := PathFor(memoryFile, id)

	delta, err := bsdiff.Bytes(baseBytes, mem)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: diff: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: new zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(delta, nil)
	enc.Close()

	if err := writeCompressedRecord(path, uint32(len(delta)), uint32(len(baseBytes)), compressed); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: id, Path: path, Compressed: true}, nil
}

// DecompressAndPatch reads this compressed snapshot, zstd-decompresses its
// delta, applies it (bspatch) on top of snapshotToPatch's bytes, and writes
// the result to resultPath (truncating if it already exists).
func DecompressAndPatch(s Snapshot, snapshotToPatch Snapshot, resultPath string) error {
	uncompressedLen, _, compressed, err := readCompressedRecord(s.Path)
	if err != nil {
		return err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("snapshot: new zstd decoder: %w", err)
	}
	defer dec.Close()

	delta, err := dec.DecodeAll(compressed, make([]byte, 0, uncompressedLen))
	if err != nil {
		return fmt.Errorf("snapshot: decompress: %w", err)
	}

	base, err := os.ReadFile(snapshotToPatch.Path)
	if err != nil {
		return fmt.Errorf("snapshot: read base %s: %w", snapshotToPatch.Path, err)
	}

	patched, err := bspatch.Bytes(base, delta)
	if err != nil {
		return fmt.Errorf("snapshot: patch: %w", err)
	}

	return writeFileTruncating(resultPath, patched)
}

// Restore byte-copies this snapshot onto memoryFile, truncating it first.
func Restore(s Snapshot, memoryFile string) error {
	return copyFile(s.Path, memoryFile)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("snapshot: read %s: %w", src, err)
	}
	return writeFileTruncating(dst, data)
}

func writeFileTruncating(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// writeCompressedRecord persists the compact compressed-snapshot layout:
// <u32 LE uncompressed_delta_len><u32 LE source_len><compressed_bytes>.
func writeCompressedRecord(path string, uncompressedDeltaLen, sourceLen uint32, compressed []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uncompressedDeltaLen)
	binary.LittleEndian.PutUint32(header[4:8], sourceLen)
	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("snapshot: write header %s: %w", path, err)
	}
	if _, err := f.Write(compressed); err != nil {
		return fmt.Errorf("snapshot: write body %s: %w", path, err)
	}
	return nil
}

func readCompressedRecord(path string) (uncompressedDeltaLen, sourceLen uint32, compressed []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	var header [8]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, 0, nil, fmt.Errorf("snapshot: read header %s: %w", path, err)
	}
	uncompressedDeltaLen = binary.LittleEndian.Uint32(header[0:4])
	sourceLen = binary.LittleEndian.Uint32(header[4:8])

	compressed, err = io.ReadAll(f)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("snapshot: read body %s: %w", path, err)
	}
	return uncompressedDeltaLen, sourceLen, compressed, nil
}
