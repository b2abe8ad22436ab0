package heap

import (
	"github.com/wippyai/wasm-gc/errors"
)

// The wasmgc.Memory view addresses the backing store by byte offset. It
// is meant for tooling and for hosts that copy raw payloads; object field
// access goes through Load*/Store*.

func (h *Heap) inBounds(offset, length uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(len(h.mem))
}

func oob(op string) error {
	return errors.NewTrap(errors.TrapMemoryOutOfBounds, op)
}

// Read returns length bytes at offset. The slice aliases the heap.
func (h *Heap) Read(offset uint32, length uint32) ([]byte, error) {
	if !h.inBounds(offset, length) {
		return nil, oob("heap.read")
	}
	return h.mem[offset : offset+length], nil
}

// Write copies data to offset.
func (h *Heap) Write(offset uint32, data []byte) error {
	if !h.inBounds(offset, uint32(len(data))) || uint64(len(data)) > uint64(len(h.mem)) {
		return oob("heap.write")
	}
	copy(h.mem[offset:], data)
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (h *Heap) ReadU8(offset uint32) (uint8, error) {
	if !h.inBounds(offset, 1) {
		return 0, oob("heap.read")
	}
	return h.mem[offset], nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (h *Heap) ReadU16(offset uint32) (uint16, error) {
	if !h.inBounds(offset, 2) {
		return 0, oob("heap.read")
	}
	return h.u16(offset), nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (h *Heap) ReadU32(offset uint32) (uint32, error) {
	if !h.inBounds(offset, 4) {
		return 0, oob("heap.read")
	}
	return h.u32(offset), nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (h *Heap) ReadU64(offset uint32) (uint64, error) {
	if !h.inBounds(offset, 8) {
		return 0, oob("heap.read")
	}
	return h.u64(offset), nil
}

// WriteU8 writes an unsigned 8-bit value.
func (h *Heap) WriteU8(offset uint32, value uint8) error {
	if !h.inBounds(offset, 1) {
		return oob("heap.write")
	}
	h.mem[offset] = value
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (h *Heap) WriteU16(offset uint32, value uint16) error {
	if !h.inBounds(offset, 2) {
		return oob("heap.write")
	}
	h.putU16(offset, value)
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (h *Heap) WriteU32(offset uint32, value uint32) error {
	if !h.inBounds(offset, 4) {
		return oob("heap.write")
	}
	h.putU32(offset, value)
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (h *Heap) WriteU64(offset uint32, value uint64) error {
	if !h.inBounds(offset, 8) {
		return oob("heap.write")
	}
	h.putU64(offset, value)
	return nil
}
