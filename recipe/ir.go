package recipe

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-gc/errors"
)

// Type is the type of an IR value.
type Type uint8

const (
	I32 Type = iota + 1
	I64
)

func (t Type) String() string {
	if t == I64 {
		return "i64"
	}
	return "i32"
}

func (t Type) mask(v uint64) uint64 {
	if t == I32 {
		return v & 0xffffffff
	}
	return v
}

// Cond is an integer comparison.
type Cond uint8

const (
	Eq Cond = iota
	Ne
	Ult
	Ugt
)

func (c Cond) String() string {
	switch c {
	case Ne:
		return "ne"
	case Ult:
		return "ult"
	case Ugt:
		return "ugt"
	}
	return "eq"
}

func (c Cond) eval(a, b uint64) bool {
	switch c {
	case Ne:
		return a != b
	case Ult:
		return a < b
	case Ugt:
		return a > b
	}
	return a == b
}

// Routine is a runtime entry point callable from a recipe.
type Routine uint8

const (
	AllocRaw Routine = iota
	AllocUninit
	RefIncSlow
	Drop
	SubtypeCheck
)

var routines = [...]struct {
	name   string
	params int
	result bool
}{
	AllocRaw:     {"gc_alloc_raw", 4, true},
	AllocUninit:  {"gc_alloc_uninit", 4, true},
	RefIncSlow:   {"gc_ref_inc_slow", 1, false},
	Drop:         {"gc_drop", 1, false},
	SubtypeCheck: {"gc_subtype_check", 2, true},
}

func (r Routine) String() string { return routines[r].name }

// VMField is a runtime context field that recipes read and write directly.
type VMField uint8

const (
	VMActivationHead VMField = iota
	VMActivationCapacity
)

func (f VMField) String() string {
	if f == VMActivationCapacity {
		return "activation_capacity"
	}
	return "activation_head"
}

// Value names an SSA value.
type Value uint32

func (v Value) String() string { return fmt.Sprintf("v%d", v) }

// BlockID names a block.
type BlockID int

func (b BlockID) String() string { return fmt.Sprintf("block%d", b) }

// Op is an instruction opcode.
type Op uint8

const (
	OpIconst Op = iota
	OpBase      // heap base, reloaded after any call that may move the heap
	OpUextend
	OpIadd
	OpIaddImm
	OpBandImm
	OpIshlImm
	OpUshrImm
	OpSshrImm
	OpIcmp
	OpIcmpImm
	OpLoad
	OpStore
	OpVMLoad          // read a VMField
	OpVMStore         // write a VMField
	OpActivationStore // write an activation table entry
	OpCall
	OpBrif
	OpJump
	OpTrap
	OpReturn
)

// Inst is one instruction. Which fields are meaningful depends on Op.
type Inst struct {
	Args []Value
	Imm  int64
	Dst  Value
	Then BlockID
	Else BlockID
	Op   Op
	Type Type
	Cond Cond
	Call Routine
	Trap errors.TrapCode
}

// Block is a basic block. Only the entry block has parameters.
type Block struct {
	Insts  []Inst
	Params []Value
	ID     BlockID
}

// Program is a recipe: a function in a small CLIF-like IR.
type Program struct {
	Name   string
	Blocks []*Block
	types  []Type
}

// Params returns the program's parameters.
func (p *Program) Params() []Value { return p.Blocks[0].Params }

// TypeOf returns the type of v.
func (p *Program) TypeOf(v Value) Type { return p.types[v] }

// Count returns how many instructions with opcode op the program has.
func (p *Program) Count(op Op) int {
	n := 0
	for _, b := range p.Blocks {
		for _, in := range b.Insts {
			if in.Op == op {
				n++
			}
		}
	}
	return n
}

// Calls reports whether the program calls r.
func (p *Program) Calls(r Routine) bool {
	for _, b := range p.Blocks {
		for _, in := range b.Insts {
			if in.Op == OpCall && in.Call == r {
				return true
			}
		}
	}
	return false
}

func trapName(c errors.TrapCode) string {
	return strings.ReplaceAll(c.String(), " ", "_")
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func offset(imm int64) string {
	switch {
	case imm == 0:
		return ""
	case imm < 0:
		return fmt.Sprintf("%d", imm)
	}
	return fmt.Sprintf("+%d", imm)
}

func (p *Program) inst(in Inst) string {
	switch in.Op {
	case OpIconst:
		return fmt.Sprintf("%s = iconst.%s %d", in.Dst, in.Type, in.Imm)
	case OpBase:
		return fmt.Sprintf("%s = load.i64 notrap aligned can_move vmctx+heap_base", in.Dst)
	case OpUextend:
		return fmt.Sprintf("%s = uextend.i64 %s", in.Dst, in.Args[0])
	case OpIadd:
		return fmt.Sprintf("%s = iadd %s, %s", in.Dst, in.Args[0], in.Args[1])
	case OpIaddImm:
		return fmt.Sprintf("%s = iadd_imm %s, %d", in.Dst, in.Args[0], in.Imm)
	case OpBandImm:
		return fmt.Sprintf("%s = band_imm %s, %d", in.Dst, in.Args[0], in.Imm)
	case OpIshlImm:
		return fmt.Sprintf("%s = ishl_imm %s, %d", in.Dst, in.Args[0], in.Imm)
	case OpUshrImm:
		return fmt.Sprintf("%s = ushr_imm %s, %d", in.Dst, in.Args[0], in.Imm)
	case OpSshrImm:
		return fmt.Sprintf("%s = sshr_imm %s, %d", in.Dst, in.Args[0], in.Imm)
	case OpIcmp:
		return fmt.Sprintf("%s = icmp %s %s, %s", in.Dst, in.Cond, in.Args[0], in.Args[1])
	case OpIcmpImm:
		return fmt.Sprintf("%s = icmp_imm %s %s, %d", in.Dst, in.Cond, in.Args[0], in.Imm)
	case OpLoad:
		return fmt.Sprintf("%s = load.%s notrap aligned %s%s", in.Dst, in.Type, in.Args[0], offset(in.Imm))
	case OpStore:
		return fmt.Sprintf("store notrap aligned %s, %s%s", in.Args[0], in.Args[1], offset(in.Imm))
	case OpVMLoad:
		return fmt.Sprintf("%s = load.i32 notrap aligned vmctx+%s", in.Dst, VMField(in.Imm))
	case OpVMStore:
		return fmt.Sprintf("store notrap aligned %s, vmctx+%s", in.Args[0], VMField(in.Imm))
	case OpActivationStore:
		return fmt.Sprintf("store notrap aligned %s, activations[%s]", in.Args[1], in.Args[0])
	case OpCall:
		call := fmt.Sprintf("call %s(%s)", in.Call, joinValues(in.Args))
		if routines[in.Call].result {
			return fmt.Sprintf("%s = %s", in.Dst, call)
		}
		return call
	case OpBrif:
		return fmt.Sprintf("brif %s, %s, %s", in.Args[0], in.Then, in.Else)
	case OpJump:
		return fmt.Sprintf("jump %s", in.Then)
	case OpTrap:
		return "trap " + trapName(in.Trap)
	case OpReturn:
		if len(in.Args) == 0 {
			return "return"
		}
		return "return " + joinValues(in.Args)
	}
	return "unknown"
}

// String prints the program.
func (p *Program) String() string {
	var b strings.Builder
	params := p.Params()
	sig := make([]string, len(params))
	for i, v := range params {
		sig[i] = p.types[v].String()
	}
	fmt.Fprintf(&b, "function %%%s(%s) {\n", p.Name, strings.Join(sig, ", "))
	for _, blk := range p.Blocks {
		if len(blk.Params) == 0 {
			fmt.Fprintf(&b, "%s:\n", blk.ID)
		} else {
			ps := make([]string, len(blk.Params))
			for i, v := range blk.Params {
				ps[i] = fmt.Sprintf("%s: %s", v, p.types[v])
			}
			fmt.Fprintf(&b, "%s(%s):\n", blk.ID, strings.Join(ps, ", "))
		}
		for _, in := range blk.Insts {
			b.WriteString("    ")
			b.WriteString(p.inst(in))
			b.WriteByte('\n')
		}
	}
	b.WriteString("}\n")
	return b.String()
}
