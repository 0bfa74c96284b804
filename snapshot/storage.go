package snapshot

import "github.com/herr-seppia/hatchery/ids"

// PathFor returns the on-disk path of a snapshot of the given memory file:
// "<hex(ModuleId)>_<hex(SnapshotId)>". memoryFile is expected to already be
// named by the module's hex-encoded ModuleId.
func PathFor(memoryFile string, id ids.SnapshotId) string {
	return memoryFile + "_" + id.String()
}
