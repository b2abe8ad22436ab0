package typesec

import (
	"fmt"

	"github.com/wippyai/wasm-gc/errors"
)

type reader struct {
	data []byte
	pos  int
	// base is the offset of data within the module, for error messages
	base int
}

func (r *reader) fail(what string, format string, args ...any) error {
	return errors.New(errors.PhaseType, errors.KindInvalidData).
		Path("typesec", what).
		Value(r.base + r.pos).
		Detail("at offset %d: %s", r.base+r.pos, fmt.Sprintf(format, args...)).
		Build()
}

func (r *reader) done() bool { return r.pos >= len(r.data) }

func (r *reader) u8(what string) (byte, error) {
	if r.done() {
		return 0, r.fail(what, "unexpected end")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(what string, n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.data)) {
		return nil, r.fail(what, "%d bytes past the end", n)
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// u32 reads an unsigned LEB128 value.
func (r *reader) u32(what string) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.u8(what)
		if err != nil {
			return 0, err
		}
		if shift == 28 && b&0x70 != 0 {
			return 0, r.fail(what, "u32 overflow")
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 28 {
			return 0, r.fail(what, "u32 too long")
		}
	}
}

// count reads a vector length. Every element takes at least one byte, so
// a length beyond the remaining input is rejected before anything is
// allocated for it.
func (r *reader) count(what string) (uint32, error) {
	n, err := r.u32(what)
	if err != nil {
		return 0, err
	}
	if left := len(r.data) - r.pos; uint64(n) > uint64(left) {
		return 0, r.fail(what, "%d entries with %d bytes left", n, left)
	}
	return n, nil
}

// s33 reads a signed LEB128 heap type.
func (r *reader) s33(what string) (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.u8(what)
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		if shift >= 35 {
			return 0, r.fail(what, "s33 too long")
		}
	}
}
