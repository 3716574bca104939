package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cmdvault/db"
	"cmdvault/runner"
	"cmdvault/template"
	"cmdvault/ui"
)

// interactive reports whether prompts can take over the terminal.
var interactive = func() bool {
	return isTerminal(os.Stdin.Fd()) && isTerminal(os.Stdout.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type execFlags struct {
	params   []string
	quote    bool
	dryRun   bool
	noRecord bool
	dir      string
	tags     []string
}

func newExecCmd(s *session) *cobra.Command {
	flags := &execFlags{}

	cmd := &cobra.Command{
		Use:   "exec <id>",
		Short: "Run a stored command, asking for its parameters",
		Long: `Run a stored command. Every @name placeholder is asked for in the order it
first appears; values given with --param are used as-is and not asked for.
Values are inserted verbatim, so a value may carry shell syntax. Use --quote to
pass --param values as single literal words instead.

The process exits with the command's exit status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runExec(cmd, s, flags, args[0])
			silenceOnExitError(cmd, err)
			return err
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&flags.params, "param", "p", nil, "parameter value as name=value (repeatable)")
	f.BoolVar(&flags.quote, "quote", false, "shell-quote --param values")
	f.BoolVar(&flags.dryRun, "dry-run", false, "print the final command without running it")
	f.BoolVar(&flags.noRecord, "no-record", false, "do not store the executed command")
	f.StringVar(&flags.dir, "dir", "", "working directory (default: the directory stored with the command)")
	f.StringSliceVarP(&flags.tags, "tag", "t", nil, "extra tag for the recorded command (repeatable)")
	return cmd
}

func runExec(cmd *cobra.Command, s *session, flags *execFlags, arg string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	stored, err := s.db.Get(id)
	if err != nil {
		return notFound(err, id)
	}

	// Recorded executions run verbatim.
	tmpl := template.Literal(stored.Cmd)
	if !stored.Literal {
		if tmpl, err = template.Parse(stored.Cmd); err != nil {
			return err
		}
	}

	preset, err := runner.ParseAssignments(flags.params)
	if err != nil {
		return err
	}
	for name := range preset {
		if !tmpl.Params().Has(name) {
			s.log.Warn("ignoring value for unknown parameter", zap.String("param", name))
		}
	}
	if flags.quote {
		if preset, err = runner.QuoteBinding(preset); err != nil {
			return err
		}
	}

	defaults := template.Binding(db.LastParams(*stored))
	var next runner.Collector
	if interactive() {
		next = ui.PromptCollector{Defaults: defaults, Preview: tmpl.Preview}
	} else {
		next = runner.LineCollector{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr(), Defaults: defaults}
	}

	dir := flags.dir
	if dir == "" {
		dir = stored.Directory
	}

	flow := &runner.Flow{
		Collector: runner.ChainCollector{Preset: preset, Next: next},
		Executor: &runner.Executor{
			Shell:     s.cfg.Shell,
			Dir:       dir,
			Stdin:     cmd.InOrStdin(),
			Stdout:    cmd.OutOrStdout(),
			Stderr:    cmd.ErrOrStderr(),
			Capture:   s.cfg.Capture,
			MaxOutput: s.cfg.MaxOutputBytes,
			Logger:    s.log,
		},
		Tags:    db.NormalizeTags(append(append([]string{}, stored.Tags...), flags.tags...)),
		Literal: stored.Literal,
		Logger:  s.log,
	}

	if flags.dryRun {
		final, _, err := flow.Prepare(cmd.Context(), stored.Cmd)
		if err != nil {
			return aborted(cmd, err)
		}
		if err := runner.CheckSyntax(final); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), final)
		return nil
	}

	record := s.cfg.Record && !flags.noRecord
	if record {
		flow.Recorder = &db.Recorder{DB: s.db, TemplateID: stored.ID, Logger: s.log}
	}

	out, err := flow.Run(cmd.Context(), stored.Cmd)
	if out == nil {
		return aborted(cmd, err)
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errColor.Sprintf("warning: %v", err))
	}
	if !record {
		if err := s.db.UpdateLastUsed(stored.ID, out.Binding); err != nil {
			s.log.Warn("failed to update last use", zap.Int64("id", stored.ID), zap.Error(err))
		}
	}

	res := out.Result
	if res.State == runner.StateSignaled {
		fmt.Fprintln(cmd.ErrOrStderr(), errColor.Sprintf("killed by %s", res.Signal))
	}
	if res.ExitCode != 0 {
		return &ExitError{Code: res.ExitCode}
	}
	return nil
}

// aborted turns a cancelled prompt into a quiet, successful exit.
func aborted(cmd *cobra.Command, err error) error {
	if errors.Is(err, runner.ErrCollectionAborted) {
		fmt.Fprintln(cmd.ErrOrStderr(), mutedColor.Sprint("Aborted."))
		return nil
	}
	return err
}
