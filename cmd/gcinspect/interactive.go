package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/layout"
	"github.com/wippyai/wasm-gc/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	tableBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#666666"))
)

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Run   key.Binding
	Back  key.Binding
	Quit  key.Binding
	Stats key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Run, k.Back, k.Stats, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Run:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run")),
	Back:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Stats: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stats")),
	Quit:  key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
}

type modelState int

const (
	stateSelect modelState = iota
	stateBrowse
)

type interactiveModel struct {
	err       error
	store     *store.Store
	output    string
	help      help.Model
	objects   table.Model
	opts      options
	selected  int
	width     int
	height    int
	state     modelState
	showStats bool
}

type scenarioMsg struct {
	err    error
	store  *store.Store
	output string
}

func objectColumns(width int) []table.Column {
	cols := []table.Column{
		{Title: "Ref", Width: 12},
		{Title: "Kind", Width: 10},
		{Title: "Type", Width: 6},
		{Title: "Size", Width: 8},
		{Title: "Len", Width: 8},
		{Title: "Count", Width: 8},
	}
	// give the ref column whatever the terminal has left
	used := 0
	for _, c := range cols {
		used += c.Width + 2
	}
	if extra := width - used - 2; extra > 0 {
		cols[0].Width += min(extra, 12)
	}
	return cols
}

func newInteractiveModel(opts options, width, height int) *interactiveModel {
	t := table.New(
		table.WithColumns(objectColumns(width)),
		table.WithFocused(true),
		table.WithHeight(max(height-12, 5)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#666666")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = selectedStyle
	t.SetStyles(styles)

	return &interactiveModel{
		opts:    opts,
		objects: t,
		help:    help.New(),
		width:   width,
		height:  height,
		state:   stateSelect,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) runSelected() tea.Msg {
	var out bytes.Buffer
	s, err := runScenario(scenarios[m.selected], m.opts.cfg, &out)
	return scenarioMsg{err: err, store: s, output: out.String()}
}

func (m *interactiveModel) closeStore() {
	if m.store != nil {
		m.store.Close()
		m.store = nil
	}
}

func objectRows(s *store.Store) []table.Row {
	var rows []table.Row
	s.Objects(func(o heap.Object) bool {
		typ := strconv.FormatUint(uint64(o.Type), 10)
		if o.Type == heap.ExternTypeIndex {
			typ = "-"
		}
		length := ""
		if o.Kind == layout.KindArrayRef {
			length = strconv.FormatUint(uint64(o.Length), 10)
		}
		rows = append(rows, table.Row{
			o.Ref.String(),
			o.Kind.String(),
			typ,
			strconv.FormatUint(uint64(o.Size), 10),
			length,
			strconv.FormatUint(o.RefCount, 10),
		})
		return true
	})
	return rows
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.objects.SetColumns(objectColumns(msg.Width))
		m.objects.SetHeight(max(msg.Height-12, 5))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.closeStore()
			return m, tea.Quit

		case key.Matches(msg, keys.Stats):
			m.showStats = !m.showStats
			return m, nil

		case m.state == stateSelect && key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case m.state == stateSelect && key.Matches(msg, keys.Down):
			if m.selected < len(scenarios)-1 {
				m.selected++
			}
			return m, nil

		case m.state == stateSelect && key.Matches(msg, keys.Run):
			m.closeStore()
			return m, m.runSelected

		case m.state == stateBrowse && key.Matches(msg, keys.Back):
			m.closeStore()
			m.state = stateSelect
			m.output = ""
			m.err = nil
			return m, nil
		}

	case scenarioMsg:
		m.err = msg.err
		m.output = msg.output
		m.store = msg.store
		m.state = stateBrowse
		if m.store != nil {
			m.objects.SetRows(objectRows(m.store))
			m.objects.GotoTop()
		} else {
			m.objects.SetRows(nil)
		}
		return m, nil
	}

	if m.state == stateBrowse {
		var cmd tea.Cmd
		m.objects, cmd = m.objects.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("GC Inspector"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("heap %d..%d bytes", m.opts.cfg.Heap.InitialSize, m.opts.cfg.Heap.MaxSize))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		b.WriteString("Select a scenario:\n\n")
		for i, sc := range scenarios {
			line := fmt.Sprintf("%-20s %s", sc.name, sc.desc)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + nameStyle.Render(fmt.Sprintf("%-20s", sc.name)) + " " + descStyle.Render(sc.desc))
			}
			b.WriteString("\n")
		}

	case stateBrowse:
		sc := scenarios[m.selected]
		b.WriteString(nameStyle.Render(sc.name))
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		if m.output != "" {
			b.WriteString(resultStyle.Render(strings.TrimRight(m.output, "\n")))
			b.WriteString("\n")
		}
		if m.store != nil {
			if m.showStats {
				var st bytes.Buffer
				printStats(&st, m.store.Stats())
				b.WriteString(descStyle.Render(strings.TrimRight(st.String(), "\n")))
				b.WriteString("\n")
			}
			b.WriteString(tableBorder.Render(m.objects.View()))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func runInteractive(opts options) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	width, height, err := term.GetSize(fd)
	if err != nil {
		width, height = 80, 24
	}
	m := newInteractiveModel(opts, width, height)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	m.closeStore()
	return err
}
