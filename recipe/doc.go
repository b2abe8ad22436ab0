// Package recipe emits the code sequences a compiler inlines for GC
// operations: store and write barriers, spills, ref.test, allocation and
// i31 unboxing. Recipes are Programs in a small CLIF-like IR that prints
// in textual form and runs on a Machine against a real heap.
//
// Conventions shared by every recipe:
//
//   - References are i32 heap offsets; an address is the i64 heap base
//     plus the zero-extended offset.
//   - The i31 tag bit is tested before null, and both before any load.
//   - Reference counts are adjusted inline; only the zero-count case
//     calls out to gc_drop.
//   - Spills bump the activation table inline (vmctx+activation_head) and
//     call gc_ref_inc_slow only when the table is full.
//   - The heap base is reloaded after every call that can allocate.
//
// Example:
//
//	p := recipe.WriteBarrier(reg, gctype.AnyRef)
//	fmt.Print(p)
//	m := recipe.NewMachine(h, casts)
//	_, err := m.Run(p, uint64(slot), uint64(v))
package recipe
