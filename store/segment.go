package store

import (
	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
)

// DataSegment is a passive data segment. A dropped segment is empty.
type DataSegment struct {
	data    []byte
	dropped bool
}

// Len returns the segment length in bytes.
func (d *DataSegment) Len() uint32 { return uint32(len(d.bytes())) }

func (d *DataSegment) bytes() []byte {
	if d == nil || d.dropped {
		return nil
	}
	return d.data
}

// NewDataSegment creates a passive data segment holding a copy of data.
func (s *Store) NewDataSegment(data []byte) *DataSegment {
	d := &DataSegment{data: append([]byte(nil), data...)}
	s.datas = append(s.datas, d)
	return d
}

// NewDataSegmentFrom creates a data segment from length bytes of mem
// starting at offset.
func (s *Store) NewDataSegmentFrom(mem wasmgc.Memory, offset, length uint32) (*DataSegment, error) {
	data, err := mem.Read(offset, length)
	if err != nil {
		return nil, err
	}
	return s.NewDataSegment(data), nil
}

// DataDrop empties the segment.
func (s *Store) DataDrop(d *DataSegment) {
	d.dropped = true
	d.data = nil
}

// ElemSegment is a passive element segment. Each counted entry owns one
// count on its object until the segment is dropped.
type ElemSegment struct {
	typ     gctype.RefType
	entries []gcref.Ref
	counted bool
}

// Len returns the number of entries.
func (e *ElemSegment) Len() uint32 { return uint32(len(e.entries)) }

// Type returns the element type.
func (e *ElemSegment) Type() gctype.RefType { return e.typ }

// NewElemSegment creates a passive element segment. For function types
// the values are gcref.FuncRef bits.
func (s *Store) NewElemSegment(t gctype.RefType, values []uint64) (*ElemSegment, error) {
	if err := s.ensureOpen("elem.new"); err != nil {
		return nil, err
	}
	e := &ElemSegment{
		typ:     t,
		entries: make([]gcref.Ref, len(values)),
		counted: s.reg.Counted(t),
	}
	refs := make([]gcref.Ref, len(values))
	for i, v := range values {
		refs[i] = gcref.Ref(v)
	}
	if !e.counted {
		copy(e.entries, refs)
	} else if err := barrier.WriteAll(s.heap, barrier.Cells(e.entries), refs); err != nil {
		return nil, err
	}
	s.elems = append(s.elems, e)
	return e, nil
}

// ElemDrop empties the segment, releasing its entries.
func (s *Store) ElemDrop(e *ElemSegment) error {
	entries := e.entries
	e.entries = nil
	if !e.counted || len(entries) == 0 || s.closed {
		return nil
	}
	return barrier.ClearAll(s.heap, barrier.Cells(entries))
}
