package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"cmdvault/db"
	"cmdvault/model"
	"cmdvault/runner"
	"cmdvault/template"
)

type mode int

const (
	modeNormal mode = iota
	modeAdd
	modeEdit
	modeDelete
	modeParam
)

// Options configure how the browser runs commands.
type Options struct {
	Shell     string
	Record    bool
	MaxOutput int64
	Logger    *zap.Logger
}

// pending is a command waiting for its parameters or its output.
type pending struct {
	cmd     model.Command
	tmpl    *template.Template
	binding template.Binding
	stream  bool
}

type App struct {
	db       *db.DB
	opts     Options
	log      *zap.Logger
	program  *tea.Program
	commands []model.Command
	filtered []model.Command

	// UI state
	mode   mode
	cursor int
	width  int
	height int
	err    string
	status string

	// Search
	searchInput textinput.Model

	// Output
	output      viewport.Model
	outputLines []string
	running     bool
	outputChan  chan runner.OutputMsg

	// Form (add/edit)
	formInputs []textinput.Model
	formFocus  int
	editingCmd *model.Command

	// Param input
	form    *paramForm
	pending *pending
}

func NewApp(database *db.DB, opts Options) (*App, error) {
	commands, err := database.List(model.Query{})
	if err != nil {
		return nil, err
	}

	search := textinput.New()
	search.Placeholder = "Search commands..."
	search.Focus()

	output := viewport.New(80, 10)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := &App{
		db:          database,
		opts:        opts,
		log:         log,
		commands:    commands,
		filtered:    commands,
		searchInput: search,
		output:      output,
	}

	return app, nil
}

// Attach gives the app the program running it, so commands can take over
// the terminal while they run.
func (a *App) Attach(p *tea.Program) {
	a.program = p
}

func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

type outputMsg runner.OutputMsg

type flowDoneMsg struct {
	outcome *runner.Outcome
	err     error
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width - 4   // account for app padding
		a.height = msg.Height - 2 // account for app padding
		a.output.Width = a.width - 4
		a.output.Height = a.height / 3
		return a, nil

	case outputMsg:
		if msg.Done {
			a.running = false
			a.outputChan = nil
			if msg.ErrMsg != "" {
				a.outputLines = append(a.outputLines, errorStyle.Render("Error: "+msg.ErrMsg))
			}
			if msg.Result != nil {
				a.outputLines = append(a.outputLines, "", exitLine(msg.Result))
				a.recordStream(msg.Result)
			}
			a.pending = nil
			a.output.SetContent(strings.Join(a.outputLines, "\n"))
			a.output.GotoBottom()
			return a, nil
		}
		line := msg.Line
		if msg.IsErr {
			line = errorStyle.Render(line)
		}
		a.outputLines = append(a.outputLines, line)
		a.output.SetContent(strings.Join(a.outputLines, "\n"))
		a.output.GotoBottom()
		// Keep reading from channel
		return a, waitForOutput(a.outputChan)

	case flowDoneMsg:
		return a.finishFlow(msg)

	case tea.KeyMsg:
		a.err = ""
		a.status = ""

		switch a.mode {
		case modeNormal:
			return a.updateNormal(msg)
		case modeAdd, modeEdit:
			return a.updateForm(msg)
		case modeDelete:
			return a.updateDelete(msg)
		case modeParam:
			return a.updateParam(msg)
		}
	}

	return a, nil
}

func (a *App) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit

	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}

	case "down", "j":
		if a.cursor < len(a.filtered)-1 {
			a.cursor++
		}

	case "enter", "o":
		if len(a.filtered) > 0 && !a.running {
			return a.runSelectedCommand(msg.String() == "o")
		}

	case "a":
		a.mode = modeAdd
		a.editingCmd = nil
		a.initForm(nil)
		return a, nil

	case "e":
		if len(a.filtered) > 0 {
			a.mode = modeEdit
			cmd := a.filtered[a.cursor]
			a.editingCmd = &cmd
			a.initForm(&cmd)
		}
		return a, nil

	case "d":
		if len(a.filtered) > 0 {
			a.mode = modeDelete
		}
		return a, nil

	case "esc":
		a.searchInput.SetValue("")
		a.filterCommands()

	default:
		var cmd tea.Cmd
		a.searchInput, cmd = a.searchInput.Update(msg)
		a.filterCommands()
		return a, cmd
	}

	return a, nil
}

func (a *App) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit

	case "esc":
		a.mode = modeNormal
		a.searchInput.Focus()
		return a, nil

	case "tab", "down":
		a.formFocus = (a.formFocus + 1) % len(a.formInputs)
		return a, a.focusFormInput()

	case "shift+tab", "up":
		a.formFocus--
		if a.formFocus < 0 {
			a.formFocus = len(a.formInputs) - 1
		}
		return a, a.focusFormInput()

	case "enter":
		return a.submitForm()

	default:
		var cmd tea.Cmd
		a.formInputs[a.formFocus], cmd = a.formInputs[a.formFocus].Update(msg)
		return a, cmd
	}
}

func (a *App) updateDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if len(a.filtered) > 0 {
			cmd := a.filtered[a.cursor]
			if err := a.db.Delete(cmd.ID); err != nil {
				a.err = err.Error()
			} else {
				a.status = "Deleted!"
				a.refreshCommands()
				if a.cursor >= len(a.filtered) && a.cursor > 0 {
					a.cursor--
				}
			}
		}
		a.mode = modeNormal
		return a, nil

	case "n", "N", "esc":
		a.mode = modeNormal
		return a, nil
	}

	return a, nil
}

func (a *App) updateParam(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	state, cmd := a.form.update(msg)
	switch state {
	case formAborted:
		a.mode = modeNormal
		a.form = nil
		a.pending = nil
		a.status = "Cancelled"
		a.searchInput.Focus()
		return a, nil

	case formDone:
		a.pending.binding = a.form.binding()
		a.form = nil
		return a.executeCommand()
	}
	return a, cmd
}

func (a *App) runSelectedCommand(stream bool) (tea.Model, tea.Cmd) {
	cmd := a.filtered[a.cursor]
	tmpl := template.Literal(cmd.Cmd)
	if !cmd.Literal {
		var err error
		if tmpl, err = template.Parse(cmd.Cmd); err != nil {
			a.err = err.Error()
			return a, nil
		}
	}

	a.pending = &pending{cmd: cmd, tmpl: tmpl, binding: template.Binding{}, stream: stream}
	if params := tmpl.Params(); params.Len() > 0 {
		a.mode = modeParam
		a.form = newParamForm(params, db.LastParams(cmd), tmpl.Preview)
		return a, textinput.Blink
	}

	return a.executeCommand()
}

func (a *App) executor(cmd model.Command) *runner.Executor {
	return &runner.Executor{
		Shell:     a.opts.Shell,
		Dir:       cmd.Directory,
		Capture:   true,
		MaxOutput: a.opts.MaxOutput,
		Logger:    a.log,
	}
}

func (a *App) recorder(cmd model.Command) runner.Recorder {
	if !a.opts.Record {
		return nil
	}
	return &db.Recorder{DB: a.db, TemplateID: cmd.ID, Logger: a.log}
}

func (a *App) executeCommand() (tea.Model, tea.Cmd) {
	p := a.pending
	a.mode = modeNormal
	a.searchInput.Focus()

	finalCmd, err := p.tmpl.Substitute(p.binding)
	if err != nil {
		a.err = err.Error()
		a.pending = nil
		return a, nil
	}

	a.running = true
	a.outputLines = []string{cmdPreviewStyle.Render("$ " + finalCmd), ""}
	a.output.SetContent(strings.Join(a.outputLines, "\n"))

	if p.stream {
		// Start command in goroutine
		a.outputChan = make(chan runner.OutputMsg)
		go a.executor(p.cmd).Stream(context.Background(), finalCmd, a.outputChan)
		return a, waitForOutput(a.outputChan)
	}

	exec := a.executor(p.cmd)
	exec.Stdin, exec.Stdout, exec.Stderr = os.Stdin, os.Stdout, os.Stderr
	flow := &runner.Flow{
		Collector: runner.PresetCollector{Values: p.binding},
		Executor:  exec,
		Recorder:  a.recorder(p.cmd),
		Tags:      p.cmd.Tags,
		Literal:   p.cmd.Literal,
		Logger:    a.log,
	}
	if a.program != nil {
		flow.Terminal = ProgramTerminal{Program: a.program}
	}

	raw := p.cmd.Cmd
	return a, func() tea.Msg {
		out, err := flow.Run(context.Background(), raw)
		return flowDoneMsg{outcome: out, err: err}
	}
}

func (a *App) finishFlow(msg flowDoneMsg) (tea.Model, tea.Cmd) {
	a.running = false
	p := a.pending
	a.pending = nil

	if msg.outcome == nil {
		if errors.Is(msg.err, runner.ErrCollectionAborted) {
			a.status = "Cancelled"
		} else if msg.err != nil {
			a.err = msg.err.Error()
			a.outputLines = append(a.outputLines, errorStyle.Render("Error: "+msg.err.Error()))
		}
		a.output.SetContent(strings.Join(a.outputLines, "\n"))
		return a, nil
	}

	res := msg.outcome.Result
	if res.Output != "" {
		a.outputLines = append(a.outputLines, strings.Split(strings.TrimRight(res.Output, "\n"), "\n")...)
	}
	if res.Truncated {
		a.outputLines = append(a.outputLines, mutedStyle.Render("(output truncated)"))
	}
	a.outputLines = append(a.outputLines, "", exitLine(res))
	a.output.SetContent(strings.Join(a.outputLines, "\n"))
	a.output.GotoBottom()

	if msg.err != nil {
		a.err = msg.err.Error()
	}
	if p != nil && !a.opts.Record {
		a.touch(p.cmd, msg.outcome.Binding)
	}
	a.refreshCommands()
	return a, nil
}

// recordStream stores a command run through the output pane.
func (a *App) recordStream(res *runner.Result) {
	p := a.pending
	if p == nil {
		return
	}

	rec := a.recorder(p.cmd)
	if rec == nil {
		a.touch(p.cmd, p.binding)
		a.refreshCommands()
		return
	}
	_, err := rec.Save(runner.Record{
		Command:  res.Command,
		ExitCode: res.ExitCode,
		Dir:      p.cmd.Directory,
		Tags:     p.cmd.Tags,
		Binding:  p.binding,
		Result:   res,
	})
	if err != nil {
		a.log.Error("failed to record command", zap.String("command", res.Command), zap.Error(err))
		a.err = err.Error()
	}
	a.refreshCommands()
}

func (a *App) touch(cmd model.Command, binding template.Binding) {
	if err := a.db.UpdateLastUsed(cmd.ID, binding); err != nil {
		a.log.Warn("failed to update last use", zap.Int64("id", cmd.ID), zap.Error(err))
	}
}

func exitLine(res *runner.Result) string {
	text := fmt.Sprintf("exit %d • %s", res.ExitCode, res.Duration.Round(time.Millisecond))
	if res.State == runner.StateSignaled {
		text = fmt.Sprintf("killed by %s (exit %d)", res.Signal, res.ExitCode)
	}
	if res.Success() {
		return successStyle.Render(text)
	}
	return warningStyle.Render(text)
}

func waitForOutput(ch chan runner.OutputMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return outputMsg{Done: true}
		}
		return outputMsg(msg)
	}
}

const (
	fieldName = iota
	fieldCmd
	fieldDesc
	fieldDir
	fieldTags
)

func (a *App) initForm(cmd *model.Command) {
	a.formInputs = make([]textinput.Model, 5)

	nameInput := textinput.New()
	nameInput.Placeholder = "Name (e.g., deploy prod)"
	nameInput.Focus()

	cmdInput := textinput.New()
	cmdInput.Placeholder = "Command (use @param or @param:description for dynamic values)"

	descInput := textinput.New()
	descInput.Placeholder = "Description (optional)"

	dirInput := textinput.New()
	dirInput.Placeholder = "Working directory (optional)"

	tagsInput := textinput.New()
	tagsInput.Placeholder = "Tags, comma separated (optional)"

	if cmd != nil {
		nameInput.SetValue(cmd.Name)
		cmdInput.SetValue(cmd.Cmd)
		descInput.SetValue(cmd.Description)
		dirInput.SetValue(cmd.Directory)
		tagsInput.SetValue(strings.Join(cmd.Tags, ", "))
	} else if wd, err := os.Getwd(); err == nil {
		dirInput.SetValue(wd)
	}

	a.formInputs[fieldName] = nameInput
	a.formInputs[fieldCmd] = cmdInput
	a.formInputs[fieldDesc] = descInput
	a.formInputs[fieldDir] = dirInput
	a.formInputs[fieldTags] = tagsInput
	a.formFocus = 0
}

func (a *App) focusFormInput() tea.Cmd {
	for i := range a.formInputs {
		a.formInputs[i].Blur()
	}
	return a.formInputs[a.formFocus].Focus()
}

func (a *App) submitForm() (tea.Model, tea.Cmd) {
	name := strings.TrimSpace(a.formInputs[fieldName].Value())
	cmd := strings.TrimSpace(a.formInputs[fieldCmd].Value())
	desc := strings.TrimSpace(a.formInputs[fieldDesc].Value())
	dir := strings.TrimSpace(a.formInputs[fieldDir].Value())
	tags := db.NormalizeTags([]string{a.formInputs[fieldTags].Value()})

	if name == "" || cmd == "" {
		a.err = "Name and command are required"
		return a, nil
	}
	tmpl := template.Literal(cmd)
	if a.editingCmd == nil || !a.editingCmd.Literal {
		var err error
		if tmpl, err = template.Parse(cmd); err != nil {
			a.err = err.Error()
			return a, nil
		}
	}

	excludeID := int64(0)
	if a.editingCmd != nil {
		excludeID = a.editingCmd.ID
	}

	dup, err := a.db.IsDuplicate(cmd, excludeID)
	if err != nil {
		a.err = err.Error()
		return a, nil
	}
	if dup {
		a.err = "A command with this exact command already exists"
		return a, nil
	}

	c := model.Command{Name: name, Cmd: cmd, Description: desc, Directory: dir, Tags: tags}
	if a.mode == modeAdd {
		_, err = a.db.Add(c)
		if err != nil {
			a.err = err.Error()
			return a, nil
		}
		a.status = "Added!" + paramSummary(tmpl.Params())
	} else {
		c.ID = a.editingCmd.ID
		err = a.db.Update(c)
		if err != nil {
			a.err = err.Error()
			return a, nil
		}
		a.status = "Updated!" + paramSummary(tmpl.Params())
	}

	a.refreshCommands()
	a.mode = modeNormal
	a.searchInput.Focus()
	return a, nil
}

func (a *App) refreshCommands() {
	commands, err := a.db.List(model.Query{})
	if err != nil {
		a.err = err.Error()
		return
	}
	a.commands = commands
	a.filterCommands()
}

func (a *App) filterCommands() {
	query := a.searchInput.Value()
	if query == "" {
		a.filtered = a.commands
		a.clampCursor()
		return
	}

	// Build searchable strings
	var targets []string
	for _, c := range a.commands {
		targets = append(targets, c.Name+" "+c.Cmd+" "+strings.Join(c.Tags, " "))
	}

	matches := fuzzy.Find(query, targets)
	a.filtered = make([]model.Command, len(matches))
	for i, m := range matches {
		a.filtered[i] = a.commands[m.Index]
	}
	a.clampCursor()
}

func (a *App) clampCursor() {
	if a.cursor >= len(a.filtered) {
		a.cursor = max(0, len(a.filtered)-1)
	}
}

func (a *App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Title
	title := titleStyle.Render("cmdvault")
	b.WriteString(title)
	b.WriteString("\n\n")

	// Search bar
	searchBox := a.searchInput.View()
	b.WriteString(searchBox)
	b.WriteString("\n\n")

	// Command list
	listHeight := (a.height - a.output.Height - 10) / 2
	if listHeight < 3 {
		listHeight = 3
	}

	if a.mode == modeAdd || a.mode == modeEdit {
		b.WriteString(a.renderForm())
	} else {
		b.WriteString(a.renderList(listHeight))
	}

	// Delete confirmation
	if a.mode == modeDelete && len(a.filtered) > 0 {
		cmd := a.filtered[a.cursor]
		b.WriteString("\n")
		b.WriteString(warningStyle.Render(fmt.Sprintf("Delete '%s'? (y/n)", cmd.Title())))
		b.WriteString("\n")
	}

	// Param input
	if a.mode == modeParam && a.form != nil {
		b.WriteString("\n")
		b.WriteString(a.form.view(a.width))
	}

	// Output pane
	b.WriteString("\n")
	outputTitle := outputTitleStyle.Render("OUTPUT")
	if a.running {
		outputTitle += " " + mutedStyle.Render("running...")
	}
	b.WriteString(outputTitle)
	b.WriteString("\n")

	outputBox := borderStyle.Width(a.width - 4).Render(a.output.View())
	b.WriteString(outputBox)
	b.WriteString("\n")

	// Status/error
	if a.err != "" {
		b.WriteString(errorStyle.Render("Error: " + a.err))
		b.WriteString("\n")
	}
	if a.status != "" {
		b.WriteString(successStyle.Render(a.status))
		b.WriteString("\n")
	}

	// Help bar
	b.WriteString(a.renderHelp())

	return appStyle.Render(b.String())
}

func (a *App) renderList(height int) string {
	if len(a.filtered) == 0 {
		return mutedStyle.Render("No commands found. Press 'a' to add one.\n")
	}

	var lines []string
	start := 0
	if a.cursor >= height {
		start = a.cursor - height + 1
	}

	end := start + height
	if end > len(a.filtered) {
		end = len(a.filtered)
	}

	for i := start; i < end; i++ {
		cmd := a.filtered[i]
		prefix := "  "
		style := normalStyle
		if i == a.cursor {
			prefix = "▸ "
			style = selectedStyle
		}

		name := style.Render(prefix + cmd.Title())
		if len(cmd.Tags) > 0 {
			name += " " + tagStyle.Render("#"+strings.Join(cmd.Tags, " #"))
		}
		preview := cmdPreviewStyle.Render("  " + truncate(cmd.Cmd, a.width-10))
		lines = append(lines, name, preview)
	}

	return strings.Join(lines, "\n") + "\n"
}

func (a *App) renderForm() string {
	var b strings.Builder

	title := "Add Command"
	if a.mode == modeEdit {
		title = "Edit Command"
	}
	b.WriteString(labelStyle.Render(title))
	b.WriteString("\n\n")

	labels := []string{"Name", "Command", "Description", "Directory", "Tags"}
	for i, input := range a.formInputs {
		b.WriteString(labelStyle.Render(labels[i] + ": "))
		style := inputStyle
		if i == a.formFocus {
			style = focusedInputStyle
		}
		b.WriteString(style.Width(a.width - 20).Render(input.View()))
		b.WriteString("\n\n")
	}

	b.WriteString(helpStyle.Render("tab: next field • enter: save • esc: cancel"))
	b.WriteString("\n")

	return b.String()
}

func (a *App) renderHelp() string {
	switch a.mode {
	case modeParam:
		return helpStyle.Render("enter: next • shift+tab: back • esc: cancel")
	case modeNormal:
	default:
		return ""
	}

	keys := []struct{ key, desc string }{
		{"enter", "run"},
		{"o", "run here"},
		{"a", "add"},
		{"e", "edit"},
		{"d", "delete"},
		{"q", "quit"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, helpKeyStyle.Render(k.key)+" "+helpStyle.Render(k.desc))
	}

	return strings.Join(parts, "  ")
}

// paramSummary lists the parameters of a saved command with their
// descriptions, prefixed by a space, or returns "" when there are none.
func paramSummary(ps *template.ParameterSet) string {
	if ps.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, ps.Len())
	for _, p := range ps.Params() {
		part := "@" + p.Name
		if p.Description != "" {
			part += " (" + p.Description + ")"
		}
		parts = append(parts, part)
	}
	return " " + strings.Join(parts, ", ")
}

// truncate shortens s to n display cells, ending it with "...".
func truncate(s string, n int) string {
	if n < 4 || ansi.StringWidth(s) <= n {
		return s
	}
	return ansi.Truncate(s, n, "...")
}
