package typesec_test

import (
	"testing"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/store"
	"github.com/wippyai/wasm-gc/typesec"
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// module assembles a binary from (id, payload) pairs. Payloads stay
// below 128 bytes so the size is a single LEB byte.
func module(sections ...[]byte) []byte {
	out := append([]byte(nil), header...)
	for _, s := range sections {
		out = append(out, s[0], byte(len(s)-1))
		out = append(out, s[1:]...)
	}
	return out
}

// typeSection holds:
//
//	(rec
//	  (type $node (sub (struct (field (mut i32)))))
//	  (type $pair (sub final $node (struct (field (mut i32)) (field (mut (ref null $pair)))))))
//	(type $bytes (array (mut i8)))
//	(type $fn (func (param (ref $node)) (result i32)))
//	(type $refs (array anyref))
var typeSection = []byte{
	0x01,
	0x04,
	0x4E, 0x02,
	0x50, 0x00, 0x5F, 0x01, 0x7F, 0x01,
	0x4F, 0x01, 0x00, 0x5F, 0x02, 0x7F, 0x01, 0x63, 0x01, 0x01,
	0x5E, 0x78, 0x01,
	0x60, 0x01, 0x64, 0x00, 0x01, 0x7F,
	0x5E, 0x6E, 0x00,
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDecode(t *testing.T) {
	custom := []byte{0x00, 0x03, 'a', 'b', 'c'}
	groups, err := typesec.Decode(module(custom, typeSection))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(groups) != 4 {
		t.Fatalf("got %d groups, want 4", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Fatalf("got rec group of %d, want 2", len(groups[0]))
	}

	node, pair := groups[0][0], groups[0][1]
	if node.Final || node.Super != gctype.NoSuper {
		t.Errorf("node: got final=%v super=%d, want open without super", node.Final, node.Super)
	}
	if !pair.Final || pair.Super != 0 {
		t.Errorf("pair: got final=%v super=%d, want final below 0", pair.Final, pair.Super)
	}
	if got, want := pair.Comp.String(), "(struct (field (mut i32)) (field (mut (ref null $1))))"; got != want {
		t.Errorf("pair: got %s, want %s", got, want)
	}

	tests := []struct {
		group int
		want  string
	}{
		{1, "(array (mut i8))"},
		{2, "(func (param (ref $0)) (result i32))"},
		{3, "(array anyref)"},
	}
	for _, tt := range tests {
		sub := groups[tt.group][0]
		if got := sub.Comp.String(); got != tt.want {
			t.Errorf("group %d: got %s, want %s", tt.group, got, tt.want)
		}
		if !sub.Final || sub.Super != gctype.NoSuper {
			t.Errorf("group %d: shorthand should be final without super", tt.group)
		}
	}
}

func TestDecodeNoTypeSection(t *testing.T) {
	tests := []struct {
		name string
		mod  []byte
	}{
		{"empty", module()},
		{"custom only", module([]byte{0x00, 0x01, 'x'})},
		{"import first", module([]byte{0x02, 0x00}, typeSection)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := typesec.Decode(tt.mod)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(groups) != 0 {
				t.Errorf("got %d groups, want 0", len(groups))
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  []byte
		kind errors.Kind
	}{
		{"short header", header[:6], errors.KindInvalidData},
		{"bad magic", []byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00}, errors.KindInvalidData},
		{"version 2", []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}, errors.KindUnsupported},
		{"section past end", append(append([]byte(nil), header...), 0x01, 0x10, 0x00), errors.KindInvalidData},
		{"bad form", module([]byte{0x01, 0x01, 0x40}), errors.KindInvalidData},
		{"two supertypes", module([]byte{0x01, 0x01, 0x50, 0x02, 0x00, 0x01, 0x5F, 0x00}), errors.KindInvalidData},
		{"packed param", module([]byte{0x01, 0x01, 0x60, 0x01, 0x78, 0x00}), errors.KindInvalidData},
		{"bad mutability", module([]byte{0x01, 0x01, 0x5E, 0x7F, 0x02}), errors.KindInvalidData},
		{"unknown heap type", module([]byte{0x01, 0x01, 0x5E, 0x63, 0x40, 0x00}), errors.KindInvalidData},
		{"truncated", module([]byte{0x01, 0x02, 0x5F, 0x02, 0x7F, 0x00}), errors.KindInvalidData},
		{"trailing bytes", module([]byte{0x01, 0x00, 0x5E, 0x7F, 0x00}), errors.KindInvalidData},
		{"long count", module([]byte{0x01, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}), errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := typesec.Decode(tt.mod)
			var e *errors.Error
			if !errors.As(err, &e) {
				t.Fatalf("got %v, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseType || e.Kind != tt.kind {
				t.Errorf("got %s/%s, want %s/%s", e.Phase, e.Kind, errors.PhaseType, tt.kind)
			}
		})
	}
}

func TestDefine(t *testing.T) {
	s := newStore(t)
	// an existing type shifts every module index by one
	if _, err := s.DefineArray(gctype.ArrayType{Element: gctype.FieldType{Storage: gctype.Val(gctype.I64)}}, gctype.NoSuper, true); err != nil {
		t.Fatalf("DefineArray: %v", err)
	}

	groups, err := typesec.DecodeSection(typeSection[1:])
	if err != nil {
		t.Fatalf("DecodeSection: %v", err)
	}
	indices, err := typesec.Define(s, groups)
	if err != nil {
		t.Fatalf("Define: %v", err)
	}
	want := []gctype.TypeIndex{1, 2, 3, 4, 5}
	if len(indices) != len(want) {
		t.Fatalf("got %v, want %v", indices, want)
	}
	for i := range want {
		if indices[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, indices[i], want[i])
		}
	}

	reg := s.Registry()
	if !reg.IsSubtype(2, 1) {
		t.Errorf("pair should be a subtype of node after rebasing")
	}
	pair, _ := reg.Struct(2)
	if got := pair.Fields[1].Storage.Val.Ref.Heap; got != gctype.Concrete(2) {
		t.Errorf("pair field 1: got %s, want $2", got)
	}
	fn, _ := reg.Func(4)
	if got := fn.Params[0].Ref.Heap; got != gctype.Concrete(1) {
		t.Errorf("func param: got %s, want $1", got)
	}

	// the decoded types are usable for allocation
	obj, err := s.StructNewDefault(2)
	if err != nil {
		t.Fatalf("StructNewDefault: %v", err)
	}
	if obj == 0 {
		t.Errorf("got null struct")
	}
}

func TestDefineRejectsForwardReference(t *testing.T) {
	s := newStore(t)
	// (type (struct (field (ref null 1)))) (type (struct))
	groups := []typesec.Group{
		{gctype.StructDef(gctype.StructType{Fields: []gctype.FieldType{
			{Storage: gctype.Ref(gctype.RefNull(gctype.Concrete(1)))},
		}}, gctype.NoSuper, true)},
		{gctype.StructDef(gctype.StructType{}, gctype.NoSuper, true)},
	}
	_, err := typesec.Define(s, groups)
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("got %v, want invalid input", err)
	}
	if !errors.Is(err, errors.OutOfBounds(errors.PhaseType, nil, 0, 0)) {
		t.Errorf("got %v, want out of bounds cause", err)
	}
	if got := s.Registry().Len(); got != 0 {
		t.Errorf("got %d registered types, want 0", got)
	}
}

func TestDecodeSectionForgedCounts(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"rec group size", []byte{0x01, 0x4E, 0xff, 0xff, 0xff, 0xff, 0x0f}},
		{"type count", []byte{0xff, 0xff, 0xff, 0xff, 0x0f, 0x5E, 0x7F, 0x00}},
		{"field count", []byte{0x01, 0x5F, 0xff, 0xff, 0xff, 0xff, 0x0f}},
		{"param count", []byte{0x01, 0x60, 0xff, 0xff, 0xff, 0xff, 0x0f, 0x00}},
		{"result count", []byte{0x01, 0x60, 0x00, 0x80, 0x80, 0x80, 0x80, 0x08}},
		{"one past the end", []byte{0x01, 0x5F, 0x02, 0x7F, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := typesec.DecodeSection(tt.payload)
			var e *errors.Error
			if !errors.As(err, &e) {
				t.Fatalf("got %v, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseType || e.Kind != errors.KindInvalidData {
				t.Errorf("got %s/%s, want %s/%s", e.Phase, e.Kind, errors.PhaseType, errors.KindInvalidData)
			}
		})
	}
}
