package main

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-gc/store"
)

func testOptions() options {
	return options{cfg: store.DefaultConfig(), stats: true}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"array-new-fixed", []string{"len=3 [1 2 3]"}},
		{"array-new-data", []string{"len=2 [98 99]"}},
		{"array-new-data-oob", []string{"trap: out of bounds memory access (allocations: 0)"}},
		{"struct-new-default", []string{"{f32=0, i8=0, anyref=null}"}},
		{"i31-table", []string{"size=5 [i31(999) i31(888) i31(111) i31(999) i31(888)]"}},
		{"i31-anyref-table", []string{"[i31(6) i31(6)]", "heap objects: 0"}},
		{"drop-chain", []string{"live before: 10000", "live after: 0 (freed 10000)"}},
		{"casts", []string{"br_on_cast sub -> base taken=true", "ref.cast i31 -> structref: cast failure"}},
		{"recipes", []string{"function %write_barrier(i32, i32) {", "count=2", "= 1 (subtype calls: 0)"}},
	}
	if len(tests) != len(scenarios) {
		t.Errorf("got %d scenarios, want %d", len(scenarios), len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(&out, testOptions(), tt.name); err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
			if !strings.Contains(out.String(), "heap: size=") {
				t.Errorf("stats not printed")
			}
		})
	}
}

func TestRunAll(t *testing.T) {
	var out bytes.Buffer
	if err := run(&out, testOptions(), "all"); err != nil {
		t.Fatal(err)
	}
	for _, sc := range scenarios {
		if !strings.Contains(out.String(), "== "+sc.name+":") {
			t.Errorf("scenario %s did not run", sc.name)
		}
	}
}

func TestUnknownScenario(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, testOptions(), "array-new-fixed,nope")
	if err == nil || !strings.Contains(err.Error(), `"nope"`) {
		t.Errorf("got %v, want unknown scenario error", err)
	}
}

func TestSmallHeap(t *testing.T) {
	opts := testOptions()
	opts.cfg.Heap.InitialSize = 64
	var out bytes.Buffer
	if err := run(&out, opts, "drop-chain"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "live after: 0") {
		t.Errorf("chain not reclaimed after growth:\n%s", out.String())
	}
}

func TestInteractiveModel(t *testing.T) {
	m := newInteractiveModel(testOptions(), 100, 40)
	for i, sc := range scenarios {
		if sc.name == "array-new-fixed" {
			m.selected = i
		}
	}

	m.Update(m.runSelected())
	if m.state != stateBrowse || m.store == nil {
		t.Fatalf("got state %d, want browsing an open store", m.state)
	}
	if got := len(m.objects.Rows()); got != 1 {
		t.Errorf("object rows: got %d, want 1", got)
	}
	if row := m.objects.Rows()[0]; row[1] != "arrayref" || row[4] != "3" {
		t.Errorf("row: got %v, want an arrayref of length 3", row)
	}
	if view := m.View(); !strings.Contains(view, "len=3") {
		t.Errorf("view missing scenario output:\n%s", view)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateSelect || m.store != nil {
		t.Errorf("esc: got state %d, store %v", m.state, m.store)
	}

	m.selected = 0
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1 {
		t.Errorf("down: got %d, want 1", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.selected != 0 {
		t.Errorf("up: got %d, want 0", m.selected)
	}
}
