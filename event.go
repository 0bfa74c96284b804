package hatchery

import "github.com/herr-seppia/hatchery/ids"

// Event is a single piece of data a module emitted via the "emit" host
// import during a call. Events are opaque to the host: it neither
// interprets nor orders them beyond the sequence a single call emitted
// them in.
type Event struct {
	Module ids.ModuleId
	Data   []byte
}

// Receipt is everything a top-level call produces: the raw reply bytes
// written to the argument buffer, every event emitted along the way (in
// emission order, across the whole call tree), and the total point cost.
type Receipt struct {
	Ret        []byte
	Events     []Event
	PointsUsed uint64
}
