package main

import (
	"fmt"
	"io"
	"os"

	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/store"
	"github.com/wippyai/wasm-gc/typesec"
)

// runTypes loads the type section of a wasm file into a fresh store and
// prints every type with its object layout.
func runTypes(w io.Writer, cfg store.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return printTypes(w, cfg, data)
}

func printTypes(w io.Writer, cfg store.Config, module []byte) error {
	groups, err := typesec.Decode(module)
	if err != nil {
		return err
	}
	s, err := store.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	indices, err := typesec.Define(s, groups)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d types in %d groups\n", len(indices), len(groups))

	reg := s.Registry()
	for _, idx := range indices {
		sub, _ := reg.Lookup(idx)
		line := fmt.Sprintf("  $%-4d %s", idx, sub.Comp)
		if sub.Super != gctype.NoSuper {
			line += fmt.Sprintf(" <: $%d", sub.Super)
		}
		if !sub.Final {
			line += " open"
		}
		if sub.Comp.Kind != gctype.CompFunc {
			info, err := s.Layout(idx)
			if err != nil {
				return err
			}
			if info.IsArray() {
				line += fmt.Sprintf(" [elem@%d size=%d]", info.Elem.Offset, info.Elem.Size)
			} else {
				line += fmt.Sprintf(" [size=%d refs=%v]", info.Size, info.RefOffsets)
			}
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
