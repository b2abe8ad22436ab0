// Package store is a per-store GC world: a type registry, a heap, the
// cast engine, and the globals, tables, segments and functions that hold
// references into the heap. Every GC proposal instruction that touches
// objects has a method here.
//
// # Values
//
// Operands and results are raw uint64 bits, the same convention as
// wazero's api package: i32 and f32 occupy the low 32 bits (see
// api.EncodeI32, api.EncodeF32), i64 and f64 all 64. A reference is the
// gcref.Ref or gcref.FuncRef widened to uint64. Packed i8/i16 fields are
// read with the signed or unsigned getters.
//
// # Ownership
//
// A new object is owned by the heap's activation table until Reset, which
// a host calls when control leaves the runtime. Storing a reference into a
// global, table, field, element or frame local takes a count of its own,
// so an object stored anywhere survives Reset. Reads never change counts.
//
//	s, _ := store.New(store.DefaultConfig())
//	defer s.Close()
//
//	node, _ := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
//	    {Storage: gctype.Ref(gctype.AnyRef), Mutable: true},
//	}}, gctype.NoSuper, false)
//	g, _ := s.NewGlobal(gctype.RefVal(gctype.AnyRef), true, 0)
//
//	obj, _ := s.StructNewDefault(node)
//	_ = s.GlobalSet(g, uint64(obj)) // count 2: activation table, global
//	_ = s.Reset()                   // count 1: global
//
// A Store is not safe for concurrent use.
package store
