// Package fixtures holds hand-written WebAssembly Text Format modules used
// as guest test fixtures. wazero's CompileModule auto-detects WAT source
// versus binary, so these string literals are fed to it directly: no
// external WASM toolchain is needed to build test guests.
//
// Every fixture shares one memory layout: SELF_ID at address 0 (below the
// 1 MiB static-image boundary, so it never affects a snapshot's content
// hash), a 64-byte state region at [1 MiB, 1 MiB+64) holding whatever the
// module treats as its mutable state, the argbuf ("A") at 1 MiB+64, and
// __heap_base right past the argbuf. That ordering keeps state mutations
// inside the hashed region while argbuf traffic never is.
package fixtures

// Box is a minimal guest exporting "set"/"get" over a single optional i16,
// mirroring the box module's semantics: set(x) replaces the stored value,
// get() returns the presence tag and value.
const Box = `(module $box
  (memory (export "memory") 18)
  (global (export "A") i32 (i32.const 1048640))
  (global (export "SELF_ID") i32 (i32.const 0))
  (global (export "__heap_base") i32 (i32.const 1048704))

  (func (export "set") (param $arg_len i32) (result i32)
    (i32.store8 (i32.const 1048600) (i32.const 1))
    (i32.store16 (i32.const 1048601) (i32.load16_u (i32.const 1048640)))
    (i32.const 0))

  (func (export "get") (param $arg_len i32) (result i32)
    (i32.store8 (i32.const 1048640) (i32.load8_u (i32.const 1048600)))
    (i32.store16 (i32.const 1048641) (i32.load16_u (i32.const 1048601)))
    (i32.const 3)))
`

// Counter exports "increment"/"read"/"mogrify", each taking/returning a
// little-endian i32 through the argbuf. increment adds 1 to a state
// counter; mogrify multiplies the counter by the i32 argument read from
// the argbuf; read writes the current value back.
const Counter = `(module $counter
  (memory (export "memory") 18)
  (global (export "A") i32 (i32.const 1048640))
  (global (export "SELF_ID") i32 (i32.const 0))
  (global (export "__heap_base") i32 (i32.const 1048704))

  (func (export "increment") (param $arg_len i32) (result i32)
    (i32.store (i32.const 1048600)
      (i32.add (i32.load (i32.const 1048600)) (i32.const 1)))
    (i32.const 0))

  (func (export "read") (param $arg_len i32) (result i32)
    (i32.store (i32.const 1048640) (i32.load (i32.const 1048600)))
    (i32.const 4))

  (func (export "mogrify") (param $arg_len i32) (result i32)
    (i32.store (i32.const 1048600)
      (i32.mul (i32.load (i32.const 1048600)) (i32.load (i32.const 1048640))))
    (i32.const 0)))
`

// CallCenter exports "relay", which expects the 32-byte target ModuleId
// already sitting in its argbuf (callers write it there before invoking)
// and cross-module-calls that target's "increment" entry via the "q"
// host import, forwarding q's ret_len as its own.
const CallCenter = `(module $callcenter
  (import "env" "q" (func $q (param i32 i32 i32 i32) (result i32)))
  (memory (export "memory") 18)
  (global (export "A") i32 (i32.const 1048640))
  (global (export "SELF_ID") i32 (i32.const 0))
  (global (export "__heap_base") i32 (i32.const 1048704))
  (data (i32.const 1048600) "increment")

  (func (export "relay") (param $arg_len i32) (result i32)
    (call $q (i32.const 1048640) (i32.const 1048600) (i32.const 9) (i32.const 0))))
`
