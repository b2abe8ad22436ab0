// Package cast implements runtime type tests over GC references.
//
// ref.test, ref.cast, br_on_cast and br_on_cast_fail all run the same
// test and differ only in what they do with the answer:
//
//	ok, err := e.Test(v, gctype.RefNull(gctype.Concrete(point)))
//	v, err = e.Cast(v, gctype.StructRef)          // "cast failure" trap
//	taken, v, err := e.BrOnCast(v, from, to)
//	taken, v, err = e.BrOnCastFail(v, from, to)   // !taken of BrOnCast
//
// Null and i31 values are decided from their bits. Heap objects are
// decided from the kind bits of their header for abstract targets and by
// their type index for concrete targets, checking index equality before
// walking the supertype chain.
//
// call_indirect uses CheckSignature, which applies the same concrete check
// to the callee's declared function type.
package cast
