// Package gctype models the GC proposal's type system: value, storage and
// reference types, struct/array/func composite types, and a Registry that
// decides nominal subtyping.
//
// The abstract heap types form three hierarchies:
//
//	any ⊒ eq ⊒ {struct, array, i31} ⊒ none
//	extern ⊒ noextern
//	func ⊒ concrete funcs ⊒ nofunc
//
// Concrete struct and array types sit below struct and array respectively
// and above none. Between concrete types, a <: b holds only if b appears
// on a's declared supertype chain.
package gctype
