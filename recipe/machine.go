package recipe

import (
	"encoding/binary"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/layout"
)

// Subtyper decides concrete subtype checks. *cast.Engine implements it.
type Subtyper interface {
	SubtypeCheck(dyn, want gctype.TypeIndex) bool
}

// DefaultMaxSteps bounds the instructions one Run may execute.
const DefaultMaxSteps = 1 << 20

// Machine executes programs against a heap. Addresses are byte offsets
// into the heap's backing store; the heap base is zero. Every memory
// access checks that the base it was computed from was loaded in the
// current heap generation, so a recipe that keeps a base across a call
// that grew the heap fails instead of reading stale memory.
type Machine struct {
	heap     *heap.Heap
	types    Subtyper
	calls    map[Routine]int
	MaxSteps int
}

// NewMachine creates a machine over h.
func NewMachine(h *heap.Heap, types Subtyper) *Machine {
	return &Machine{
		heap:     h,
		types:    types,
		calls:    make(map[Routine]int),
		MaxSteps: DefaultMaxSteps,
	}
}

// Calls returns how often r has been called.
func (m *Machine) Calls(r Routine) int { return m.calls[r] }

// ResetCalls clears the call counters.
func (m *Machine) ResetCalls() { clear(m.calls) }

type frame struct {
	vals []uint64
	// generation of the heap base each address was derived from, plus one
	gens []uint64
}

// Run executes p with args and returns its results.
func (m *Machine) Run(p *Program, args ...uint64) ([]uint64, error) {
	params := p.Params()
	if len(args) != len(params) {
		return nil, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Path(p.Name).
			Detail("%d arguments for %d parameters", len(args), len(params)).
			Build()
	}

	f := &frame{
		vals: make([]uint64, len(p.types)),
		gens: make([]uint64, len(p.types)),
	}
	for i, v := range params {
		f.vals[v] = p.types[v].mask(args[i])
	}

	blk := p.Blocks[0]
	steps := 0
	for {
		next, results, done, err := m.block(p, f, blk, &steps)
		if err != nil || done {
			return results, err
		}
		blk = p.Blocks[next]
	}
}

func (m *Machine) block(p *Program, f *frame, blk *Block, steps *int) (BlockID, []uint64, bool, error) {
	for _, in := range blk.Insts {
		*steps++
		if *steps > m.MaxSteps {
			return 0, nil, true, errors.New(errors.PhaseHost, errors.KindOverflow).
				Path(p.Name).
				Detail("step limit %d exceeded", m.MaxSteps).
				Build()
		}

		arg := func(i int) uint64 { return f.vals[in.Args[i]] }
		set := func(v uint64) { f.vals[in.Dst] = in.Type.mask(v) }

		switch in.Op {
		case OpIconst:
			set(uint64(in.Imm))
		case OpBase:
			set(0)
			f.gens[in.Dst] = m.heap.Generation() + 1
		case OpUextend:
			set(arg(0) & 0xffffffff)
			f.gens[in.Dst] = f.gens[in.Args[0]]
		case OpIadd:
			set(arg(0) + arg(1))
			f.gens[in.Dst] = max(f.gens[in.Args[0]], f.gens[in.Args[1]])
		case OpIaddImm:
			set(arg(0) + uint64(in.Imm))
			f.gens[in.Dst] = f.gens[in.Args[0]]
		case OpBandImm:
			set(arg(0) & uint64(in.Imm))
		case OpIshlImm:
			set(arg(0) << uint(in.Imm))
		case OpUshrImm:
			set(arg(0) >> uint(in.Imm))
		case OpSshrImm:
			if p.types[in.Args[0]] == I32 {
				set(uint64(int32(arg(0)) >> uint(in.Imm)))
			} else {
				set(uint64(int64(arg(0)) >> uint(in.Imm)))
			}
		case OpIcmp:
			set(b2u(in.Cond.eval(arg(0), arg(1))))
		case OpIcmpImm:
			t := p.types[in.Args[0]]
			set(b2u(in.Cond.eval(arg(0), t.mask(uint64(in.Imm)))))
		case OpLoad:
			v, err := m.load(p, f, in)
			if err != nil {
				return 0, nil, true, err
			}
			set(v)
		case OpStore:
			if err := m.store(p, f, in); err != nil {
				return 0, nil, true, err
			}
		case OpVMLoad:
			v, err := m.vmLoad(p, VMField(in.Imm))
			if err != nil {
				return 0, nil, true, err
			}
			set(v)
		case OpVMStore:
			if err := m.vmStore(p, VMField(in.Imm), arg(0)); err != nil {
				return 0, nil, true, err
			}
		case OpActivationStore:
			if err := m.heap.Activations().Put(uint32(arg(0)), gcref.Ref(arg(1))); err != nil {
				return 0, nil, true, err
			}
		case OpCall:
			v, err := m.call(in, f)
			if err != nil {
				return 0, nil, true, err
			}
			if routines[in.Call].result {
				set(v)
			}
		case OpBrif:
			if arg(0) != 0 {
				return in.Then, nil, false, nil
			}
			return in.Else, nil, false, nil
		case OpJump:
			return in.Then, nil, false, nil
		case OpTrap:
			return 0, nil, true, errors.NewTrap(in.Trap, p.Name)
		case OpReturn:
			results := make([]uint64, len(in.Args))
			for i := range in.Args {
				results[i] = arg(i)
			}
			return 0, results, true, nil
		}
	}
	return 0, nil, true, errors.InvalidData(errors.PhaseHost, []string{p.Name, blk.ID.String()}, "block falls through")
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func width(t Type) uint64 {
	if t == I64 {
		return 8
	}
	return 4
}

// address validates the address operand of a load or store.
func (m *Machine) address(p *Program, f *frame, addr Value, imm int64, t Type) (uint64, error) {
	gen := f.gens[addr]
	if gen == 0 {
		return 0, errors.InvalidData(errors.PhaseHost, []string{p.Name}, "address not derived from the heap base")
	}
	if gen-1 != m.heap.Generation() {
		return 0, errors.InvalidData(errors.PhaseHost, []string{p.Name}, "heap base used after the heap moved")
	}
	a := f.vals[addr] + uint64(imm)
	if a+width(t) > uint64(len(m.heap.Base())) {
		return 0, errors.NewTrap(errors.TrapMemoryOutOfBounds, p.Name)
	}
	return a, nil
}

func (m *Machine) load(p *Program, f *frame, in Inst) (uint64, error) {
	a, err := m.address(p, f, in.Args[0], in.Imm, in.Type)
	if err != nil {
		return 0, err
	}
	mem := m.heap.Base()
	if in.Type == I64 {
		return binary.LittleEndian.Uint64(mem[a:]), nil
	}
	return uint64(binary.LittleEndian.Uint32(mem[a:])), nil
}

func (m *Machine) store(p *Program, f *frame, in Inst) error {
	a, err := m.address(p, f, in.Args[1], in.Imm, in.Type)
	if err != nil {
		return err
	}
	mem := m.heap.Base()
	v := f.vals[in.Args[0]]
	if in.Type == I64 {
		binary.LittleEndian.PutUint64(mem[a:], v)
	} else {
		binary.LittleEndian.PutUint32(mem[a:], uint32(v))
	}
	return nil
}

func (m *Machine) vmLoad(p *Program, field VMField) (uint64, error) {
	act := m.heap.Activations()
	switch field {
	case VMActivationHead:
		return uint64(act.Head()), nil
	case VMActivationCapacity:
		return uint64(act.Capacity()), nil
	}
	return 0, errors.NotFound(errors.PhaseHost, p.Name+" vm field", field)
}

func (m *Machine) vmStore(p *Program, field VMField, v uint64) error {
	if field != VMActivationHead {
		return errors.Immutable(errors.PhaseHost, []string{p.Name, field.String()})
	}
	return m.heap.Activations().SetHead(uint32(v))
}

func (m *Machine) call(in Inst, f *frame) (uint64, error) {
	m.calls[in.Call]++
	a := make([]uint32, len(in.Args))
	for i, v := range in.Args {
		a[i] = uint32(f.vals[v])
	}

	switch in.Call {
	case AllocRaw, AllocUninit:
		alloc := m.heap.AllocRaw
		if in.Call == AllocUninit {
			alloc = m.heap.AllocUninit
		}
		r, err := alloc(layout.Kind(a[0]), a[1], a[2], a[3])
		return uint64(r), err
	case RefIncSlow:
		return 0, m.heap.Activations().ExposeSlow(gcref.Ref(a[0]))
	case Drop:
		return 0, m.heap.Drop(gcref.Ref(a[0]))
	case SubtypeCheck:
		return b2u(m.types.SubtypeCheck(gctype.TypeIndex(a[0]), gctype.TypeIndex(a[1]))), nil
	}
	return 0, errors.NotFound(errors.PhaseHost, "routine", in.Call)
}
