package main

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/runtime"
	"github.com/wippyai/wasmvm/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	trapStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			PaddingLeft(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	module   *runtime.Module
	instance *runtime.Instance
	output   *bytes.Buffer
	filename string
	result   string
	printed  string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type funcInfo struct {
	name string
	typ  wasm.FuncType
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(filename string, mod *runtime.Module, output *bytes.Buffer) *interactiveModel {
	var funcs []funcInfo
	for _, name := range exportedFuncs(mod) {
		ft, _ := exportFuncType(mod, name)
		funcs = append(funcs, funcInfo{name: name, typ: ft})
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })

	return &interactiveModel{
		filename: filename,
		module:   mod,
		output:   output,
		funcs:    funcs,
		state:    stateSelectFunc,
	}
}

type instantiatedMsg struct {
	err  error
	inst *runtime.Instance
	out  string
}

type callResultMsg struct {
	err    error
	result string
	out    string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.instantiate
}

// instantiate runs the start function once; later calls share the instance.
func (m *interactiveModel) instantiate() tea.Msg {
	inst, err := m.module.Instantiate(context.Background())
	return instantiatedMsg{inst: inst, err: err, out: m.drainOutput()}
}

func (m *interactiveModel) drainOutput() string {
	out := m.output.String()
	m.output.Reset()
	return out
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if m.instance == nil || len(m.funcs) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.reset()
			}

		case "tab", "shift+tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				step := 1
				if msg.String() == "shift+tab" {
					step = len(m.inputs) - 1
				}
				m.focusIdx = (m.focusIdx + step) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.reset()
			}
		}

	case instantiatedMsg:
		m.instance = msg.inst
		m.err = msg.err
		m.printed = msg.out

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.printed = msg.out
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.result = ""
	m.printed = ""
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.typ.Params))
	for i, p := range f.typ.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}
	slots, err := parseArgs(args, f.typ)
	if err != nil {
		return callResultMsg{err: err}
	}

	results, err := m.instance.CallRaw(context.Background(), f.name, slots...)
	out := m.drainOutput()
	if err != nil {
		return callResultMsg{err: err, out: out}
	}
	return callResultMsg{result: formatResults(results, f.typ), out: out}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.instance == nil {
		return "Instantiating module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmvm"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.name + f.typ.String()))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		m.writeOutput(&b)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.typ.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		switch trap, ok := errors.AsTrap(m.err); {
		case ok:
			b.WriteString(trapStyle.Render("trap: " + string(trap.Kind)))
		case m.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		default:
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n")
		m.writeOutput(&b)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) writeOutput(b *strings.Builder) {
	if m.printed == "" {
		return
	}
	b.WriteString("\n")
	b.WriteString(outputStyle.Render(strings.TrimRight(m.printed, "\n")))
	b.WriteString("\n")
}

func formatFunc(f funcInfo) string {
	return funcStyle.Render(f.name) + typeStyle.Render(f.typ.String())
}

func runInteractive(filename string, mod *runtime.Module, output *bytes.Buffer) error {
	p := tea.NewProgram(newInteractiveModel(filename, mod, output), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
