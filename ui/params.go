package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"cmdvault/runner"
	"cmdvault/template"
)

type formState int

const (
	formPending formState = iota
	formDone
	formAborted
)

// paramForm asks for one parameter at a time, in parameter set order.
type paramForm struct {
	params   []template.Param
	defaults template.Binding
	values   template.Binding
	index    int
	input    textinput.Model
	preview  func(template.Binding) string
}

func newParamForm(params *template.ParameterSet, defaults template.Binding, preview func(template.Binding) string) *paramForm {
	f := &paramForm{
		params:   params.Params(),
		defaults: defaults,
		values:   make(template.Binding, params.Len()),
		preview:  preview,
		input:    textinput.New(),
	}
	f.input.Prompt = "› "
	f.focusCurrent()
	return f
}

func (f *paramForm) current() template.Param {
	return f.params[f.index]
}

// focusCurrent loads the value already entered for the current parameter, or
// its remembered default.
func (f *paramForm) focusCurrent() {
	p := f.current()
	f.input.Placeholder = p.Name
	if p.Description != "" {
		f.input.Placeholder = p.Description
	}

	value, ok := f.values[p.Name]
	if !ok {
		value = f.defaults[p.Name]
	}
	f.input.SetValue(value)
	f.input.CursorEnd()
	f.input.Focus()
}

func (f *paramForm) update(msg tea.KeyMsg) (formState, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return formAborted, nil

	case "enter":
		f.values[f.current().Name] = f.input.Value()
		if f.index == len(f.params)-1 {
			return formDone, nil
		}
		f.index++
		f.focusCurrent()
		return formPending, nil

	case "shift+tab", "up":
		if f.index > 0 {
			f.values[f.current().Name] = f.input.Value()
			f.index--
			f.focusCurrent()
		}
		return formPending, nil

	default:
		var cmd tea.Cmd
		f.input, cmd = f.input.Update(msg)
		return formPending, cmd
	}
}

func (f *paramForm) binding() template.Binding {
	b := make(template.Binding, len(f.values))
	for k, v := range f.values {
		b[k] = v
	}
	return b
}

// live is the binding including what is being typed right now.
func (f *paramForm) live() template.Binding {
	b := f.binding()
	b[f.current().Name] = f.input.Value()
	return b
}

func (f *paramForm) view(width int) string {
	var b strings.Builder

	p := f.current()
	label := fmt.Sprintf("@%s", p.Name)
	if p.Description != "" {
		label += " " + mutedStyle.Render("("+p.Description+")")
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("[%d/%d] ", f.index+1, len(f.params))))
	b.WriteString(paramStyle.Render(label))
	b.WriteString("\n")
	b.WriteString(f.input.View())
	b.WriteString("\n")

	if f.preview != nil {
		b.WriteString("\n")
		b.WriteString(cmdPreviewStyle.Render("$ " + truncate(f.preview(f.live()), width-4)))
		b.WriteString("\n")
	}

	return b.String()
}

// PromptCollector collects parameter values with a small interactive
// prompt. Preview, when set, renders the command as it will run.
type PromptCollector struct {
	Defaults template.Binding
	Preview  func(template.Binding) string
	Input    io.Reader
	Output   io.Writer
}

type promptModel struct {
	form  *paramForm
	state formState
	width int
}

func (m *promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		var cmd tea.Cmd
		m.state, cmd = m.form.update(msg)
		if m.state != formPending {
			return m, tea.Quit
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.form.input, cmd = m.form.input.Update(msg)
	return m, cmd
}

func (m *promptModel) View() string {
	if m.state != formPending {
		return ""
	}
	width := m.width
	if width == 0 {
		width = 80
	}
	return m.form.view(width) + helpStyle.Render("enter: next • shift+tab: back • esc: cancel") + "\n"
}

func (c PromptCollector) Collect(ctx context.Context, params *template.ParameterSet) (template.Binding, error) {
	if params.Len() == 0 {
		return template.Binding{}, nil
	}

	m := &promptModel{form: newParamForm(params, c.Defaults, c.Preview)}
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if c.Input != nil {
		opts = append(opts, tea.WithInput(c.Input))
	}
	if c.Output != nil {
		opts = append(opts, tea.WithOutput(c.Output))
	}

	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil, runner.ErrCollectionAborted
		}
		return nil, fmt.Errorf("prompt for parameters: %w", err)
	}

	pm, ok := final.(*promptModel)
	if !ok || pm.state != formDone {
		return nil, runner.ErrCollectionAborted
	}
	return pm.form.binding(), nil
}

// ProgramTerminal hands a running bubbletea program's terminal to a child
// process and takes it back afterwards.
type ProgramTerminal struct {
	Program *tea.Program
}

func (t ProgramTerminal) Suspend() error {
	return t.Program.ReleaseTerminal()
}

func (t ProgramTerminal) Resume() error {
	return t.Program.RestoreTerminal()
}
