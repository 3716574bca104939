package ui

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdvault/db"
	"cmdvault/model"
	"cmdvault/template"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(t *testing.T, a *App, s string) {
	t.Helper()
	for _, r := range s {
		a.Update(key(string(r)))
	}
}

func newTestApp(t *testing.T, cmds ...model.Command) (*App, *db.DB) {
	t.Helper()
	d, err := db.New(filepath.Join(t.TempDir(), "commands.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	for _, c := range cmds {
		_, err := d.Add(c)
		require.NoError(t, err)
	}

	a, err := NewApp(d, Options{Record: true})
	require.NoError(t, err)
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return a, d
}

func paramSet(t *testing.T, raw string) *template.ParameterSet {
	t.Helper()
	tmpl, err := template.Parse(raw)
	require.NoError(t, err)
	return tmpl.Params()
}

func TestParamFormWalksParamsInOrder(t *testing.T) {
	tmpl, err := template.Parse("scp @file:File @host:Host:/tmp")
	require.NoError(t, err)

	f := newParamForm(tmpl.Params(), template.Binding{"host": "srv"}, tmpl.Preview)
	assert.Equal(t, "file", f.current().Name)
	assert.Equal(t, "", f.input.Value())

	f.input.SetValue("a.txt")
	state, _ := f.update(key("enter"))
	assert.Equal(t, formPending, state)
	assert.Equal(t, "host", f.current().Name)
	assert.Equal(t, "srv", f.input.Value())
	assert.Contains(t, f.view(80), "scp a.txt srv")

	state, _ = f.update(key("shift+tab"))
	assert.Equal(t, formPending, state)
	assert.Equal(t, "a.txt", f.input.Value())

	f.update(key("enter"))
	state, _ = f.update(key("enter"))
	assert.Equal(t, formDone, state)
	assert.Equal(t, template.Binding{"file": "a.txt", "host": "srv"}, f.binding())
}

func TestParamFormAbort(t *testing.T) {
	f := newParamForm(paramSet(t, "echo @a"), nil, nil)
	state, _ := f.update(key("esc"))
	assert.Equal(t, formAborted, state)
}

func TestPromptModelQuitsWhenDone(t *testing.T) {
	m := &promptModel{form: newParamForm(paramSet(t, "echo @a"), nil, nil)}
	m.form.input.SetValue("x")

	_, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, formDone, m.state)
	assert.Empty(t, m.View())
}

func TestAppRunsTemplateAndRecords(t *testing.T) {
	a, d := newTestApp(t, model.Command{Name: "greet", Cmd: "echo hello @name:Name", Tags: []string{"demo"}})

	_, cmd := a.Update(key("enter"))
	require.Equal(t, modeParam, a.mode)
	require.NotNil(t, cmd)

	typeText(t, a, "world")
	_, cmd = a.Update(key("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, modeNormal, a.mode)
	assert.True(t, a.running)

	msg := cmd()
	done, ok := msg.(flowDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	assert.Equal(t, "echo hello world", done.outcome.Command)

	a.Update(done)
	assert.False(t, a.running)
	assert.Contains(t, strings.Join(a.outputLines, "\n"), "hello world")

	found, err := d.Search("hello world", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []string{"demo"}, found[0].Tags)

	all, err := d.List(model.Query{Text: "@name"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, map[string]string{"name": "world"}, db.LastParams(all[0]))
}

func TestAppParamPromptPrefillsLastParams(t *testing.T) {
	a, d := newTestApp(t, model.Command{Name: "ssh", Cmd: "ssh @host"})
	all, err := d.List(model.Query{})
	require.NoError(t, err)
	require.NoError(t, d.UpdateLastUsed(all[0].ID, map[string]string{"host": "prod-1"}))
	a.refreshCommands()

	a.Update(key("enter"))
	require.Equal(t, modeParam, a.mode)
	assert.Equal(t, "prod-1", a.form.input.Value())

	a.Update(key("esc"))
	assert.Equal(t, modeNormal, a.mode)
	assert.Equal(t, "Cancelled", a.status)
	assert.Nil(t, a.pending)
}

func TestAppRejectsInvalidTemplate(t *testing.T) {
	a, _ := newTestApp(t, model.Command{Name: "bad", Cmd: "echo @x:"})

	_, cmd := a.Update(key("enter"))
	assert.Nil(t, cmd)
	assert.Equal(t, modeNormal, a.mode)
	assert.Contains(t, a.err, "template syntax error")
}

func TestAppStreamsIntoOutputPane(t *testing.T) {
	a, d := newTestApp(t, model.Command{Name: "two", Cmd: "echo one; echo two"})

	_, cmd := a.Update(key("o"))
	require.NotNil(t, cmd)
	for cmd != nil {
		_, cmd = a.Update(cmd())
	}

	out := strings.Join(a.outputLines, "\n")
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "two")
	assert.False(t, a.running)

	c, err := d.List(model.Query{})
	require.NoError(t, err)
	require.Len(t, c, 1)
	require.NotNil(t, c[0].ExitCode)
	assert.Equal(t, 0, *c[0].ExitCode)
}

func TestAppAddForm(t *testing.T) {
	a, d := newTestApp(t)

	a.Update(key("a"))
	require.Equal(t, modeAdd, a.mode)

	typeText(t, a, "list")
	a.Update(key("tab"))
	typeText(t, a, "ls @dir")
	a.Update(key("tab"))
	a.Update(key("tab"))
	a.Update(key("tab"))
	typeText(t, a, "fs, files")
	a.Update(key("enter"))

	assert.Equal(t, modeNormal, a.mode)
	assert.Equal(t, "Added! @dir", a.status)

	all, err := d.List(model.Query{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "ls @dir", all[0].Cmd)
	assert.Equal(t, []string{"files", "fs"}, all[0].Tags)
}

func TestAppFormShowsDescriptionExtent(t *testing.T) {
	a, _ := newTestApp(t)

	a.Update(key("a"))
	typeText(t, a, "uptime")
	a.Update(key("tab"))
	typeText(t, a, "ssh @host:Host uptime")
	a.Update(key("enter"))

	assert.Equal(t, "Added! @host (Host uptime)", a.status)
}

func TestAppRunsRecordedEntryVerbatim(t *testing.T) {
	a, d := newTestApp(t)
	_, err := d.Save("echo a@b: git@github.com:me/repo.git", 0, "", nil)
	require.NoError(t, err)
	a.refreshCommands()

	_, cmd := a.Update(key("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, modeNormal, a.mode)

	done, ok := cmd().(flowDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	assert.Equal(t, "echo a@b: git@github.com:me/repo.git", done.outcome.Command)
	assert.Equal(t, "a@b: git@github.com:me/repo.git\n", done.outcome.Result.Output)
}

func TestAppFormRejectsBadTemplate(t *testing.T) {
	a, _ := newTestApp(t)

	a.Update(key("a"))
	typeText(t, a, "x")
	a.Update(key("tab"))
	typeText(t, a, "echo @x:")
	a.Update(key("enter"))

	assert.Equal(t, modeAdd, a.mode)
	assert.Contains(t, a.err, "template syntax error")
}

func TestAppDelete(t *testing.T) {
	a, d := newTestApp(t, model.Command{Name: "gone", Cmd: "true"})

	a.Update(key("d"))
	require.Equal(t, modeDelete, a.mode)
	assert.Contains(t, a.View(), "Delete 'gone'?")

	a.Update(key("y"))
	assert.Equal(t, "Deleted!", a.status)

	all, err := d.List(model.Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppFuzzyFilterIncludesTags(t *testing.T) {
	a, _ := newTestApp(t,
		model.Command{Name: "status", Cmd: "git status", Tags: []string{"vcs"}},
		model.Command{Name: "disk", Cmd: "df -h"},
	)

	a.searchInput.SetValue("vcs")
	a.filterCommands()
	require.Len(t, a.filtered, 1)
	assert.Equal(t, "status", a.filtered[0].Name)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "abcdefghij", truncate("abcdefghij", 2))
	assert.Equal(t, "héllo...", truncate("héllo wörld", 8))
	assert.Equal(t, "日本...", truncate("日本語のコマンド", 7))
}
