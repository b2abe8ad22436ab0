package store

import (
	"fmt"
	"strconv"

	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/layout"
)

type extension uint8

const (
	extNone extension = iota
	extSigned
	extUnsigned
)

func (e extension) suffix() string {
	switch e {
	case extSigned:
		return "_s"
	case extUnsigned:
		return "_u"
	}
	return ""
}

// checkAccess enforces that packed storage is read with an explicit
// extension and everything else without one. v128 has no uint64 form.
func checkAccess(st gctype.StorageType, ext extension, path []string) error {
	if st.IsPacked() != (ext != extNone) {
		want := "packed field"
		if !st.IsPacked() {
			want = "unpacked field"
		}
		return errors.TypeMismatch(errors.PhaseAccess, path, want, st.String())
	}
	if !st.IsPacked() && !st.IsRef() && st.Val.Num == gctype.V128 {
		return errors.Unsupported(errors.PhaseAccess, "v128 through a scalar accessor")
	}
	return nil
}

func (s *Store) readRaw(obj gcref.Ref, off uint32, f layout.Field, ext extension) uint64 {
	h := s.heap
	switch f.Size {
	case 1:
		b := h.Load8(obj, off)
		if ext == extSigned {
			return uint64(uint32(int32(int8(b))))
		}
		return uint64(b)
	case 2:
		v := h.Load16(obj, off)
		if ext == extSigned {
			return uint64(uint32(int32(int16(v))))
		}
		return uint64(v)
	case 4:
		return uint64(h.Load32(obj, off))
	default:
		return h.Load64(obj, off)
	}
}

func (s *Store) writeRaw(obj gcref.Ref, off uint32, f layout.Field, v uint64) {
	h := s.heap
	switch f.Size {
	case 1:
		h.Store8(obj, off, uint8(v))
	case 2:
		h.Store16(obj, off, uint16(v))
	case 4:
		h.Store32(obj, off, uint32(v))
	default:
		h.Store64(obj, off, v)
	}
}

// writeSlot stores v at off, with a barrier when the slot is counted.
// fresh slots are known to hold null.
func (s *Store) writeSlot(obj gcref.Ref, off uint32, f layout.Field, v uint64, fresh bool) error {
	if !f.Counted {
		s.writeRaw(obj, off, f, v)
		return nil
	}
	slot := barrier.Field{Heap: s.heap, Obj: obj, Offset: off}
	if fresh {
		return barrier.Init(s.heap, slot, gcref.Ref(v))
	}
	return barrier.Write(s.heap, slot, gcref.Ref(v))
}

// checkRef verifies that a value about to be stored in a counted slot is
// null, an i31 or a live object.
func (s *Store) checkRef(counted bool, v uint64) error {
	if !counted {
		return nil
	}
	return s.heap.Check(gcref.Ref(v))
}

// FormatValue renders raw value bits according to a storage type.
func (s *Store) FormatValue(st gctype.StorageType, v uint64) string {
	if st.IsPacked() {
		return strconv.FormatUint(v, 10)
	}
	if st.IsRef() {
		if s.reg.TopOf(st.Val.Ref.Heap) == gctype.HeapFunc {
			f := gcref.FuncRef(v)
			if f.IsNull() {
				return "null"
			}
			return fmt.Sprintf("func[%d]", f.FuncIndex())
		}
		return gcref.Ref(v).String()
	}
	switch st.Val.Num {
	case gctype.I32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case gctype.I64:
		return strconv.FormatInt(int64(v), 10)
	case gctype.F32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case gctype.F64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	}
	return fmt.Sprintf("%#x", v)
}
