package hostabi

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-gc/cast"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/layout"
)

// DefaultModuleName is the import module compiled code uses.
const DefaultModuleName = "wasm-gc"

// Runtime is the state a routine operates on. *store.Store implements it.
type Runtime interface {
	Heap() *heap.Heap
	Casts() *cast.Engine
}

// Resolver finds the runtime for one call.
type Resolver func(ctx context.Context) (Runtime, error)

type runtimeKey struct{}

// WithStore attaches rt to ctx for the FromContext resolver.
func WithStore(ctx context.Context, rt Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// FromContext resolves the runtime attached with WithStore.
func FromContext(ctx context.Context) (Runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(Runtime)
	if !ok || rt == nil {
		return nil, errors.NotInitialized(errors.PhaseHost, "store in call context")
	}
	return rt, nil
}

// Static always resolves rt.
func Static(rt Runtime) Resolver {
	return func(context.Context) (Runtime, error) { return rt, nil }
}

// Options configures the host module.
type Options struct {
	Resolver   Resolver
	ModuleName string
}

// DefaultOptions returns the "wasm-gc" module resolving stores from the
// call context.
func DefaultOptions() Options {
	return Options{
		ModuleName: DefaultModuleName,
		Resolver:   FromContext,
	}
}

// Externref is a wasm externref held as the host value of an extern
// object created by gc_externref_from_host.
type Externref uintptr

// Func describes one exported routine.
type Func struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	call    func(rt Runtime, stack []uint64) error
}

var (
	i32  = api.ValueTypeI32
	xref = api.ValueTypeExternref
)

var funcs = []Func{
	{Name: "gc_alloc_raw", Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}, call: allocRaw},
	{Name: "gc_alloc_uninit", Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}, call: allocUninit},
	{Name: "gc_ref_inc_slow", Params: []api.ValueType{i32}, call: refIncSlow},
	{Name: "gc_ref_dec_slow", Params: []api.ValueType{i32}, call: refDecSlow},
	{Name: "gc_drop", Params: []api.ValueType{i32}, call: drop},
	{Name: "gc_subtype_check", Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}, call: subtypeCheck},
	{Name: "gc_externref_from_host", Params: []api.ValueType{xref}, Results: []api.ValueType{i32}, call: externFromHost},
	{Name: "gc_externref_to_host", Params: []api.ValueType{i32}, Results: []api.ValueType{xref}, call: externToHost},
}

// Functions lists the exported routines in export order.
func Functions() []Func {
	return append([]Func(nil), funcs...)
}

func ref(v uint64) gcref.Ref { return gcref.Ref(api.DecodeU32(v)) }

func alloc(rt Runtime, stack []uint64, zero bool) error {
	h := rt.Heap()
	allocate := h.AllocUninit
	if zero {
		allocate = h.AllocRaw
	}
	r, err := allocate(layout.Kind(api.DecodeU32(stack[0])),
		api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(uint32(r))
	return nil
}

func allocRaw(rt Runtime, stack []uint64) error    { return alloc(rt, stack, true) }
func allocUninit(rt Runtime, stack []uint64) error { return alloc(rt, stack, false) }

func refIncSlow(rt Runtime, stack []uint64) error {
	return rt.Heap().Activations().ExposeSlow(ref(stack[0]))
}

func refDecSlow(rt Runtime, stack []uint64) error {
	_, err := rt.Heap().DecRef(ref(stack[0]))
	return err
}

func drop(rt Runtime, stack []uint64) error {
	return rt.Heap().Drop(ref(stack[0]))
}

func subtypeCheck(rt Runtime, stack []uint64) error {
	ok := rt.Casts().SubtypeCheck(gctype.TypeIndex(api.DecodeU32(stack[0])), gctype.TypeIndex(api.DecodeU32(stack[1])))
	if ok {
		stack[0] = 1
	} else {
		stack[0] = 0
	}
	return nil
}

func externFromHost(rt Runtime, stack []uint64) error {
	x := api.DecodeExternref(stack[0])
	if x == 0 {
		stack[0] = api.EncodeU32(uint32(gcref.Null))
		return nil
	}
	r, err := rt.Heap().ExternNew(Externref(x))
	if err != nil {
		return err
	}
	stack[0] = api.EncodeU32(uint32(r))
	return nil
}

func externToHost(rt Runtime, stack []uint64) error {
	host, err := rt.Heap().ExternHost(ref(stack[0]))
	if err != nil {
		return err
	}
	switch x := host.(type) {
	case nil:
		stack[0] = api.EncodeExternref(0)
	case Externref:
		stack[0] = api.EncodeExternref(uintptr(x))
	default:
		return errors.TypeMismatch(errors.PhaseHost, []string{"gc_externref_to_host"}, "wasm externref", "Go host value")
	}
	return nil
}

func handler(f Func, resolve Resolver) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		rt, err := resolve(ctx)
		if err == nil {
			err = f.call(rt, stack)
		}
		if err != nil {
			Logger().Error("runtime routine failed",
				zap.String("func", f.Name),
				zap.Error(err))
			panic(err)
		}
	}
}

// Instantiate builds the host module into r.
func Instantiate(ctx context.Context, r wazero.Runtime, opts Options) (api.Module, error) {
	if opts.ModuleName == "" {
		opts.ModuleName = DefaultModuleName
	}
	if opts.Resolver == nil {
		opts.Resolver = FromContext
	}

	builder := r.NewHostModuleBuilder(opts.ModuleName)
	for _, f := range funcs {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(handler(f, opts.Resolver), f.Params, f.Results).
			Export(f.Name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(errors.PhaseHost, "host module "+opts.ModuleName, err)
	}
	Logger().Debug("host module instantiated",
		zap.String("module", opts.ModuleName),
		zap.Int("functions", len(funcs)))
	return mod, nil
}
