// Package wasmgc implements the garbage-collected value core of a WebAssembly
// runtime: tagged GC references, typed struct/array objects, nominal subtyping
// with runtime casts, and a deferred reference-counting (DRC) heap whose
// counts are maintained by inline store/clear barriers.
//
// # Architecture Overview
//
//	wasmgc/            Root package with the Memory interface
//	├── gcref/         Tagged 32-bit references: null, i31, heap index
//	├── gctype/        Value, storage and composite types; subtype registry
//	├── layout/        Object header and field/element layout
//	├── heap/          DRC heap: allocation, ref counts, activation table
//	├── resource/      Host value handle table used by externref objects
//	├── barrier/       Store, write and clear barriers over root slots
//	├── cast/          ref.test / ref.cast / br_on_cast / call_indirect checks
//	├── store/         Per-store GC world: globals, tables, segments, objects
//	├── recipe/        Inline barrier/cast/alloc sequences and their executor
//	├── hostabi/       wazero host module exporting the runtime entry points
//	├── typesec/       Type section decoder for wasm binaries
//	├── errors/        Structured errors and traps
//	└── cmd/gcinspect/ Scenario runner, type dump and interactive heap browser
//
// # Quick Start
//
//	s, err := store.New(store.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	point, _ := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
//	    {Storage: gctype.Val(gctype.I32), Mutable: true},
//	    {Storage: gctype.Ref(gctype.AnyRef), Mutable: true},
//	}}, gctype.NoSuper, false)
//
//	obj, _ := s.StructNewDefault(point)
//	_ = s.StructSet(obj, point, 0, 42)
//	v, _ := s.StructGet(obj, point, 0)
//
// # Reference Counting
//
// Every store of a reference into a root (global, table slot, struct field,
// array element, spilled local) increments the target's count before the
// reference is published, and the previous occupant is decremented after.
// An object is reclaimed exactly when its count reaches zero. Reads never
// touch counts. i31 values and null are never counted.
//
// # Thread Safety
//
// A Store and its heap have a single mutator. Use one Store per goroutine;
// counts are updated with plain loads and stores.
package wasmgc
