package hostabi

import (
	"github.com/tetratelabs/wazero/api"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
)

// MemoryView adapts a guest's linear memory to wasmgc.Memory, for example
// to copy a data segment out of it.
type MemoryView struct {
	Mem api.Memory
}

var _ wasmgc.Memory = (*MemoryView)(nil)

// ViewMemory wraps mem. A nil mem yields nil.
func ViewMemory(mem api.Memory) *MemoryView {
	if mem == nil {
		return nil
	}
	return &MemoryView{Mem: mem}
}

func oob(op string, offset uint32, length int) error {
	return errors.New(errors.PhaseHost, errors.KindOutOfBounds).
		Path("memory", op).
		Value(offset).
		Detail("offset=%d, length=%d", offset, length).
		Cause(errors.ErrMemoryOutOfBounds).
		Build()
}

// Size returns the memory size in bytes.
func (m *MemoryView) Size() uint32 { return m.Mem.Size() }

// Read returns a copy of length bytes at offset.
func (m *MemoryView) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, oob("read", offset, int(length))
	}
	return append([]byte(nil), data...), nil
}

// Write writes data at offset.
func (m *MemoryView) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return oob("write", offset, len(data))
	}
	return nil
}

func (m *MemoryView) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, oob("read", offset, 1)
	}
	return v, nil
}

func (m *MemoryView) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Mem.ReadUint16Le(offset)
	if !ok {
		return 0, oob("read", offset, 2)
	}
	return v, nil
}

func (m *MemoryView) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, oob("read", offset, 4)
	}
	return v, nil
}

func (m *MemoryView) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, oob("read", offset, 8)
	}
	return v, nil
}

func (m *MemoryView) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return oob("write", offset, 1)
	}
	return nil
}

func (m *MemoryView) WriteU16(offset uint32, value uint16) error {
	if !m.Mem.WriteUint16Le(offset, value) {
		return oob("write", offset, 2)
	}
	return nil
}

func (m *MemoryView) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return oob("write", offset, 4)
	}
	return nil
}

func (m *MemoryView) WriteU64(offset uint32, value uint64) error {
	if !m.Mem.WriteUint64Le(offset, value) {
		return oob("write", offset, 8)
	}
	return nil
}
