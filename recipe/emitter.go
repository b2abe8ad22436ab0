package recipe

import (
	"github.com/wippyai/wasm-gc/errors"
)

// Emitter builds a Program block by block.
type Emitter struct {
	p   *Program
	cur *Block
}

// NewEmitter starts a program whose entry block takes params.
func NewEmitter(name string, params ...Type) (*Emitter, []Value) {
	e := &Emitter{p: &Program{Name: name}}
	entry := e.p.Blocks[e.NewBlock()]
	for _, t := range params {
		entry.Params = append(entry.Params, e.value(t))
	}
	e.cur = entry
	return e, entry.Params
}

func (e *Emitter) value(t Type) Value {
	v := Value(len(e.p.types))
	e.p.types = append(e.p.types, t)
	return v
}

// NewBlock appends an empty block.
func (e *Emitter) NewBlock() BlockID {
	id := BlockID(len(e.p.Blocks))
	e.p.Blocks = append(e.p.Blocks, &Block{ID: id})
	return id
}

// Switch makes b the current block.
func (e *Emitter) Switch(b BlockID) { e.cur = e.p.Blocks[b] }

func (e *Emitter) emit(in Inst) { e.cur.Insts = append(e.cur.Insts, in) }

func (e *Emitter) def(in Inst, t Type) Value {
	in.Dst = e.value(t)
	in.Type = t
	e.emit(in)
	return in.Dst
}

// Iconst materialises a constant.
func (e *Emitter) Iconst(t Type, imm int64) Value {
	return e.def(Inst{Op: OpIconst, Imm: imm}, t)
}

// Base loads the heap base. A base must be reloaded after any call that
// can allocate.
func (e *Emitter) Base() Value {
	return e.def(Inst{Op: OpBase}, I64)
}

// Uextend widens an i32 to i64.
func (e *Emitter) Uextend(x Value) Value {
	return e.def(Inst{Op: OpUextend, Args: []Value{x}}, I64)
}

// Iadd adds two values of the same type.
func (e *Emitter) Iadd(a, b Value) Value {
	return e.def(Inst{Op: OpIadd, Args: []Value{a, b}}, e.p.types[a])
}

// IaddImm adds a constant.
func (e *Emitter) IaddImm(x Value, imm int64) Value {
	return e.def(Inst{Op: OpIaddImm, Args: []Value{x}, Imm: imm}, e.p.types[x])
}

// BandImm masks with a constant.
func (e *Emitter) BandImm(x Value, imm int64) Value {
	return e.def(Inst{Op: OpBandImm, Args: []Value{x}, Imm: imm}, e.p.types[x])
}

// IshlImm shifts left by a constant.
func (e *Emitter) IshlImm(x Value, imm int64) Value {
	return e.def(Inst{Op: OpIshlImm, Args: []Value{x}, Imm: imm}, e.p.types[x])
}

// UshrImm shifts right logically by a constant.
func (e *Emitter) UshrImm(x Value, imm int64) Value {
	return e.def(Inst{Op: OpUshrImm, Args: []Value{x}, Imm: imm}, e.p.types[x])
}

// SshrImm shifts right arithmetically by a constant.
func (e *Emitter) SshrImm(x Value, imm int64) Value {
	return e.def(Inst{Op: OpSshrImm, Args: []Value{x}, Imm: imm}, e.p.types[x])
}

// Icmp compares two values, yielding an i32 0 or 1.
func (e *Emitter) Icmp(c Cond, a, b Value) Value {
	return e.def(Inst{Op: OpIcmp, Cond: c, Args: []Value{a, b}}, I32)
}

// IcmpImm compares with a constant.
func (e *Emitter) IcmpImm(c Cond, x Value, imm int64) Value {
	return e.def(Inst{Op: OpIcmpImm, Cond: c, Args: []Value{x}, Imm: imm}, I32)
}

// Load reads a value of type t at addr+off.
func (e *Emitter) Load(t Type, addr Value, off int64) Value {
	return e.def(Inst{Op: OpLoad, Args: []Value{addr}, Imm: off}, t)
}

// Store writes v at addr+off.
func (e *Emitter) Store(v, addr Value, off int64) {
	e.emit(Inst{Op: OpStore, Args: []Value{v, addr}, Imm: off, Type: e.p.types[v]})
}

// VMLoad reads a runtime context field.
func (e *Emitter) VMLoad(f VMField) Value {
	return e.def(Inst{Op: OpVMLoad, Imm: int64(f)}, I32)
}

// VMStore writes a runtime context field.
func (e *Emitter) VMStore(f VMField, v Value) {
	e.emit(Inst{Op: OpVMStore, Args: []Value{v}, Imm: int64(f), Type: I32})
}

// ActivationStore writes v into activation table entry index.
func (e *Emitter) ActivationStore(index, v Value) {
	e.emit(Inst{Op: OpActivationStore, Args: []Value{index, v}, Type: I32})
}

// Addr computes the address of a heap offset held in an i32.
func (e *Emitter) Addr(base, ref Value) Value {
	return e.Iadd(base, e.Uextend(ref))
}

// Call calls a runtime routine. Routines without a result return 0.
func (e *Emitter) Call(r Routine, args ...Value) Value {
	in := Inst{Op: OpCall, Call: r, Args: args}
	if routines[r].result {
		return e.def(in, I32)
	}
	e.emit(in)
	return 0
}

// Brif branches to then if c is nonzero, else to els.
func (e *Emitter) Brif(c Value, then, els BlockID) {
	e.emit(Inst{Op: OpBrif, Args: []Value{c}, Then: then, Else: els})
}

// Jump branches unconditionally.
func (e *Emitter) Jump(b BlockID) {
	e.emit(Inst{Op: OpJump, Then: b})
}

// Trap raises code.
func (e *Emitter) Trap(code errors.TrapCode) {
	e.emit(Inst{Op: OpTrap, Trap: code})
}

// Return ends the program with results.
func (e *Emitter) Return(vals ...Value) {
	e.emit(Inst{Op: OpReturn, Args: vals})
}

// Finish returns the program.
func (e *Emitter) Finish() *Program { return e.p }
