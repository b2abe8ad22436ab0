package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-gc/store"
)

// a rec group of an open struct and a final subtype holding a self
// reference, then (array (mut i8)) and (func (param (ref 0)) (result i32))
var typesModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x1C,
	0x03,
	0x4E, 0x02,
	0x50, 0x00, 0x5F, 0x01, 0x7F, 0x01,
	0x4F, 0x01, 0x00, 0x5F, 0x02, 0x7F, 0x01, 0x63, 0x01, 0x01,
	0x5E, 0x78, 0x01,
	0x60, 0x01, 0x64, 0x00, 0x01, 0x7F,
}

func TestRunTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.wasm")
	if err := os.WriteFile(path, typesModule, 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runTypes(&out, store.DefaultConfig(), path); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"4 types in 3 groups",
		"(struct (field (mut i32))) open [size=24 refs=[]]",
		"(struct (field (mut i32)) (field (mut (ref null $1)))) <: $0 [size=24 refs=[20]]",
		"(array (mut i8)) [elem@20 size=1]",
		"(func (param (ref $0)) (result i32))\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunTypesErrors(t *testing.T) {
	var out bytes.Buffer
	if err := runTypes(&out, store.DefaultConfig(), filepath.Join(t.TempDir(), "missing.wasm")); err == nil {
		t.Errorf("missing file: got nil error")
	}
	if err := printTypes(&out, store.DefaultConfig(), []byte("not wasm")); err == nil {
		t.Errorf("bad module: got nil error")
	}
}
