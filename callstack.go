package hatchery

import "github.com/herr-seppia/hatchery/ids"

// Frame records one level of an in-progress call tree: which module is
// executing and how many points it was handed when it was entered.
type Frame struct {
	Module ids.ModuleId
	Limit  uint64
}

// CallStack tracks the chain of cross-module calls within a single
// top-level Query or Transact, innermost frame last. It is owned by a
// Session and never shared across sessions.
type CallStack struct {
	frames []Frame
}

// Push enters a new frame.
func (c *CallStack) Push(module ids.ModuleId, limit uint64) {
	c.frames = append(c.frames, Frame{Module: module, Limit: limit})
}

// Pop leaves the innermost frame. Calling Pop on an empty stack panics:
// that is a host bug, not a guest-reachable condition.
func (c *CallStack) Pop() Frame {
	n := len(c.frames)
	f := c.frames[n-1]
	c.frames = c.frames[:n-1]
	return f
}

// Len reports the current call depth.
func (c *CallStack) Len() int { return len(c.frames) }

// Top returns the innermost frame and whether the stack is non-empty.
func (c *CallStack) Top() (Frame, bool) {
	if len(c.frames) == 0 {
		return Frame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// Caller returns the frame that called the current innermost one, if any.
func (c *CallStack) Caller() (Frame, bool) {
	if len(c.frames) < 2 {
		return Frame{}, false
	}
	return c.frames[len(c.frames)-2], true
}
