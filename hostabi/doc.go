// Package hostabi exposes the GC runtime routines to compiled WebAssembly
// as a wazero host module.
//
// Compiled code inlines the common paths of allocation, barriers and
// casts and calls out for the rest:
//
//	gc_alloc_raw(kind, type, size, align i32) -> ref i32
//	gc_alloc_uninit(kind, type, size, align i32) -> ref i32
//	gc_ref_inc_slow(ref i32)
//	gc_ref_dec_slow(ref i32)
//	gc_drop(ref i32)
//	gc_subtype_check(dynamic, static i32) -> i32
//	gc_externref_from_host(externref) -> ref i32
//	gc_externref_to_host(ref i32) -> externref
//
// Each call resolves its store through Options.Resolver, by default the
// store attached to the call's context with WithStore. A failing routine
// logs the error and panics with it; wazero turns the panic into the error
// returned from the guest's call, so errors.Is still matches the trap.
//
// Example:
//
//	mod, err := hostabi.Instantiate(ctx, r, hostabi.DefaultOptions())
//	ctx = hostabi.WithStore(ctx, s)
//	_, err = guest.ExportedFunction("run").Call(ctx)
package hostabi
