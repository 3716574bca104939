package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"cmdvault/model"
	"cmdvault/template"
)

var (
	idColor    = color.New(color.FgYellow)
	cmdColor   = color.New(color.FgCyan, color.Bold)
	tagColor   = color.New(color.FgGreen)
	mutedColor = color.New(color.FgHiBlack)
	errColor   = color.New(color.FgRed)
	okColor    = color.New(color.FgGreen, color.Bold)
	paramColor = color.New(color.FgMagenta)
)

const timeLayout = "2006-01-02 15:04"

func printCommands(w io.Writer, cmds []model.Command) {
	if len(cmds) == 0 {
		fmt.Fprintln(w, mutedColor.Sprint("No commands found."))
		return
	}
	for _, c := range cmds {
		printCommand(w, c)
	}
}

func printCommand(w io.Writer, c model.Command) {
	fmt.Fprintf(w, "%s %s\n", idColor.Sprintf("[%d]", c.ID), cmdColor.Sprint(c.Cmd))

	var meta []string
	if c.Name != "" {
		meta = append(meta, c.Name)
	}
	meta = append(meta, c.CreatedAt.Local().Format(timeLayout))
	if c.Directory != "" {
		meta = append(meta, c.Directory)
	}
	if c.ExitCode != nil {
		code := fmt.Sprintf("exit %d", *c.ExitCode)
		if *c.ExitCode != 0 {
			code = errColor.Sprint(code)
		}
		meta = append(meta, code)
	}
	if c.Literal {
		meta = append(meta, "recorded")
	}
	fmt.Fprintf(w, "    %s\n", mutedColor.Sprint(strings.Join(meta, " • ")))

	if len(c.Tags) > 0 {
		fmt.Fprintf(w, "    %s\n", tagColor.Sprint("#"+strings.Join(c.Tags, " #")))
	}
}

func printTags(w io.Writer, tags []model.TagCount) {
	if len(tags) == 0 {
		fmt.Fprintln(w, mutedColor.Sprint("No tags found."))
		return
	}
	for _, t := range tags {
		fmt.Fprintf(w, "%s %s\n", tagColor.Sprintf("%-20s", t.Name), mutedColor.Sprintf("(%d)", t.Count))
	}
}

// printParams lists each parameter with its full description.
func printParams(w io.Writer, params *template.ParameterSet) {
	if params.Len() == 0 {
		return
	}
	fmt.Fprintln(w, mutedColor.Sprint("parameters:"))
	for _, p := range params.Params() {
		line := "  " + paramColor.Sprint("@"+p.Name)
		if p.Description != "" {
			line += " (" + p.Description + ")"
		}
		fmt.Fprintln(w, line)
	}
}
