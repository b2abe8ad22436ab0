// Package typesec reads the type section of a WebAssembly binary and
// defines its recursion groups in a store.
//
// Decoded groups keep module-relative type indices. Define rebases them
// onto the store's registry, so a module's types can be loaded next to
// types that are already defined:
//
//	groups, err := typesec.Decode(wasmBytes)
//	indices, err := typesec.Define(s, groups)
//	// indices[i] is the registry index of module type i
package typesec
