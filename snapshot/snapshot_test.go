package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testArgBuf sits 100 bytes past the 1 MiB static-image boundary, leaving a
// non-empty state region for these tests to mutate and observe in the hash;
// testHeapBase sits past the argbuf, so the argbuf bytes themselves never
// enter the hashed region.
const testArgBuf = staticImageSkip + 100
const testHeapBase = testArgBuf + 64

func writeMemFile(t *testing.T, dir, name string, size int, fill func([]byte)) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	if fill != nil {
		fill(data)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRelevantBytesExcludesStaticImageAndArgBuf(t *testing.T) {
	mem := make([]byte, testHeapBase+64)
	for i := range mem {
		mem[i] = byte(i)
	}

	rel := RelevantBytes(mem, testHeapBase, testArgBuf)

	// State region bytes (just past the static image) are included.
	require.Equal(t, mem[staticImageSkip], rel[0])
	// Argbuf bytes never appear: state region stops at argBufOffset.
	stateLen := testArgBuf - staticImageSkip
	require.Len(t, rel, stateLen+len(mem)-(testHeapBase+heapPrefixSkip))
}

func TestCaptureIsContentAddressedAndDeterministic(t *testing.T) {
	dir := t.TempDir()
	memPath := writeMemFile(t, dir, "deadbeef", testHeapBase+128, func(b []byte) {
		b[staticImageSkip] = 7
	})

	snap1, err := Capture(memPath, testHeapBase, testArgBuf)
	require.NoError(t, err)

	snap2, err := Capture(memPath, testHeapBase, testArgBuf)
	require.NoError(t, err)

	require.Equal(t, snap1.ID, snap2.ID)
	require.Equal(t, snap1.Path, snap2.Path)
	require.FileExists(t, snap1.Path)
}

func TestCaptureChangesWithState(t *testing.T) {
	dir := t.TempDir()
	memPath := writeMemFile(t, dir, "deadbeef", testHeapBase+128, nil)

	before, err := Capture(memPath, testHeapBase, testArgBuf)
	require.NoError(t, err)

	mem, err := os.ReadFile(memPath)
	require.NoError(t, err)
	mem[staticImageSkip] = 0xFF
	require.NoError(t, os.WriteFile(memPath, mem, 0o644))

	after, err := Capture(memPath, testHeapBase, testArgBuf)
	require.NoError(t, err)

	require.NotEqual(t, before.ID, after.ID)
}

func TestCaptureDiffAndDecompressAndPatchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	memPath := writeMemFile(t, dir, "deadbeef", testHeapBase+128, nil)

	base, err := Capture(memPath, testHeapBase, testArgBuf)
	require.NoError(t, err)

	mem, err := os.ReadFile(memPath)
	require.NoError(t, err)
	mem[staticImageSkip] = 42
	mem[testHeapBase+heapPrefixSkip] = 99
	require.NoError(t, os.WriteFile(memPath, mem, 0o644))

	delta, err := CaptureDiff(base, memPath, testHeapBase, testArgBuf)
	require.NoError(t, err)
	require.True(t, delta.Compressed)
	require.NotEqual(t, base.ID, delta.ID)

	resultPath := filepath.Join(dir, "restored")
	require.NoError(t, DecompressAndPatch(delta, base, resultPath))

	restored, err := os.ReadFile(resultPath)
	require.NoError(t, err)
	require.Equal(t, mem, restored)
}

func TestRestoreCopiesSnapshotOntoMemoryFile(t *testing.T) {
	dir := t.TempDir()
	memPath := writeMemFile(t, dir, "deadbeef", testHeapBase+128, func(b []byte) {
		b[0] = 0xAA
	})

	snap, err := Capture(memPath, testHeapBase, testArgBuf)
	require.NoError(t, err)

	dest := filepath.Join(dir, "other.mem")
	require.NoError(t, Restore(snap, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	want, err := os.ReadFile(memPath)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
