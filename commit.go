package hatchery

import "github.com/herr-seppia/hatchery/ids"

// Commit is the record a World.Commit produces: for every module deployed
// at commit time, the index within that module's snapshot bag holding the
// memory it had at that moment.
type Commit struct {
	entries map[ids.ModuleId]int
}

// Index reports the bag index a module was committed at, and whether that
// module was part of this commit at all.
func (c Commit) Index(module ids.ModuleId) (int, bool) {
	idx, ok := c.entries[module]
	return idx, ok
}

// Modules returns the set of modules this commit covers, in no particular
// order.
func (c Commit) Modules() []ids.ModuleId {
	out := make([]ids.ModuleId, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	return out
}
