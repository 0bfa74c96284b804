package hatchery

import (
	"log/slog"

	"github.com/herr-seppia/hatchery/memory"
)

// DefaultPointLimit is the point budget a session uses for a call unless
// SetPointLimit has been called.
const DefaultPointLimit uint64 = 4 * 1024 * 1024

// PointPassPercentage is the fraction of a caller's remaining budget passed
// to a callee on a cross-module call; the remainder is the caller's
// reserve for its own continuation after the callee returns.
const PointPassPercentage uint64 = 93

// DefaultArgBufLen is the conventional argument-buffer length a guest's
// exported "A" global points at, absent any other agreement between host
// and guest. It is a compile-time constant on the guest side; the host
// simply has to agree on the same number.
const DefaultArgBufLen = 64

// BaseCallPointCost is the flat point cost charged for every exported
// guest function invocation, leaf or cross-module, representing the
// host-level overhead of dispatching into a guest export.
const BaseCallPointCost uint64 = 16

// ArgBytePointCost is the additional point cost charged per byte of
// argument data a call copies into the callee's argbuf.
const ArgBytePointCost uint64 = 1

// Config controls World construction. The zero value is not usable;
// construct one with NewConfig.
type Config struct {
	storageDir     string
	pages          int
	defaultLimit   uint64
	logger         *slog.Logger
	nativeQueryFns map[string]NativeQueryFunc
}

// NewConfig returns a Config rooted at storageDir with the runtime's
// defaults: an 18-page (≈1.18 MiB) linear memory per module and a 4 MiB
// point budget per call.
func NewConfig(storageDir string) *Config {
	return &Config{
		storageDir:   storageDir,
		pages:        memory.DefaultPages,
		defaultLimit: DefaultPointLimit,
		logger:       slog.Default(),
	}
}

func (c *Config) clone() *Config {
	clone := *c
	if c.nativeQueryFns != nil {
		clone.nativeQueryFns = make(map[string]NativeQueryFunc, len(c.nativeQueryFns))
		for k, v := range c.nativeQueryFns {
			clone.nativeQueryFns[k] = v
		}
	}
	return &clone
}

// WithPages overrides the number of WASM pages (64 KiB each) every
// module's linear memory is created with.
func (c *Config) WithPages(pages int) *Config {
	ret := c.clone()
	ret.pages = pages
	return ret
}

// WithDefaultPointLimit overrides the point budget new sessions open
// with. A session can raise or lower its own budget later via
// Session.SetPointLimit; this only changes the starting value.
func (c *Config) WithDefaultPointLimit(limit uint64) *Config {
	ret := c.clone()
	ret.defaultLimit = limit
	return ret
}

// WithLogger overrides the logger that the host_debug import and the
// world open/deploy/commit/restore boundaries write to. Defaults to
// slog.Default().
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// NativeQueryFunc answers a host-native query (the "nq" import): a guest
// asks for data the host can produce directly, without addressing another
// module.
type NativeQueryFunc func(argBuf []byte, argLen uint32) (replyLen uint32, err error)

// WithNativeQuery registers a host-native query under name, reachable from
// guest code via the "nq" host import. Calling it again with the same name
// replaces the previous registration.
func (c *Config) WithNativeQuery(name string, fn NativeQueryFunc) *Config {
	ret := c.clone()
	if ret.nativeQueryFns == nil {
		ret.nativeQueryFns = make(map[string]NativeQueryFunc)
	}
	ret.nativeQueryFns[name] = fn
	return ret
}

func (c *Config) memorySize() int {
	return c.pages * memory.PageSize
}
