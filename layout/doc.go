// Package layout computes the in-memory placement of GC objects.
//
// Every object begins with a 16-byte header:
//
//	@0  u32  kind (top 5 bits) | freed bit | size in bytes (low 26 bits)
//	@4  u32  type index
//	@8  u64  reference count
//
// Struct fields follow the header in declaration order, each aligned to its
// own size (capped at 8). Arrays store a u32 length at offset 16 and their
// elements from the first offset at or after 20 that is aligned for the
// element type. References occupy 4 bytes.
//
// # Usage
//
//	calc := layout.NewCalculator(reg)
//	info, err := calc.Layout(idx)
//	size, err := info.ArraySize(n) // arrays
//
// Sizes that do not fit the header's 26-bit size field are rejected with an
// "allocation size too large" trap.
package layout
