// Package vm implements the owl core: the tagged object model, the
// mark-sweep collector, bytecode, and the stack-machine interpreter.
//
// This package contains:
//   - Objects: Nothing, Number, Boolean, Symbol, String, List, Array, Dict
//   - A collector with roots, pins and a pluggable Allocator
//   - Growable buffers charged to the Allocator
//   - Bytecode (NOP, JUMP, PUSH, SYSCALL) and its disassembly
//   - The interpreter, its operand stack and zero-copy argument windows
//   - The intrinsic registry and the built-in intrinsics
//   - An intrinsic call profiler
package vm
