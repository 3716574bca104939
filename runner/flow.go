package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cmdvault/template"
)

// Terminal is a front end that owns the screen. It is suspended while a
// child process runs so the child gets direct terminal control.
type Terminal interface {
	Suspend() error
	Resume() error
}

// Record is what gets handed to storage after an execution.
type Record struct {
	Command  string
	ExitCode int
	Dir      string
	Tags     []string
	Binding  template.Binding
	Result   *Result
}

// Recorder persists executed commands.
type Recorder interface {
	Save(rec Record) (int64, error)
}

// Outcome is the product of one Flow.Run.
type Outcome struct {
	Command  string
	Binding  template.Binding
	Result   *Result
	RecordID int64
}

// ErrNoExecutor is returned by Flow.Run when the Flow has no Executor.
var ErrNoExecutor = errors.New("flow has no executor")

// Flow drives one template through parse, collect, substitute, execute and
// record. It keeps no state between runs. Executor is required by Run.
type Flow struct {
	Collector Collector
	Executor  *Executor
	Terminal  Terminal
	Recorder  Recorder
	Tags      []string
	// Literal skips templating: raw is the final command.
	Literal bool
	Logger  *zap.Logger
}

func (f *Flow) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Prepare parses raw, collects its bindings and returns the final command.
func (f *Flow) Prepare(ctx context.Context, raw string) (string, template.Binding, error) {
	log := f.logger()
	if f.Literal {
		return raw, template.Binding{}, nil
	}

	tmpl, err := template.Parse(raw)
	if err != nil {
		log.Debug("template rejected", zap.String("template", raw), zap.Error(err))
		return "", nil, err
	}

	params := tmpl.Params()
	binding := template.Binding{}
	if params.Len() > 0 {
		if f.Collector == nil {
			return "", nil, &template.UnboundParameterError{Name: params.Names()[0]}
		}
		log.Debug("collecting parameters", zap.Strings("params", params.Names()))
		binding, err = f.Collector.Collect(ctx, params)
		if err != nil {
			if errors.Is(err, ErrCollectionAborted) {
				log.Info("parameter collection aborted")
			}
			return "", nil, err
		}
		if name, missing := binding.Missing(params); missing {
			return "", nil, &template.UnboundParameterError{Name: name}
		}
	}

	final, err := tmpl.Substitute(binding)
	if err != nil {
		return "", nil, err
	}
	return final, binding, nil
}

// Run executes raw end to end. A non-zero exit status is reported in the
// Outcome, not as an error. If recording fails the Outcome is still returned
// alongside the error.
func (f *Flow) Run(ctx context.Context, raw string) (*Outcome, error) {
	if f.Executor == nil {
		return nil, ErrNoExecutor
	}
	final, binding, err := f.Prepare(ctx, raw)
	if err != nil {
		return nil, err
	}

	log := f.logger().With(zap.String("command", final))
	log.Info("executing command")

	result, err := f.execute(ctx, final)
	if result == nil {
		return nil, err
	}
	if err != nil {
		log.Warn("terminal not restored cleanly", zap.Error(err))
	}
	log.Info("command finished",
		zap.Stringer("state", result.State),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))

	out := &Outcome{Command: final, Binding: binding, Result: result}
	if f.Recorder == nil {
		return out, nil
	}

	id, err := f.Recorder.Save(Record{
		Command:  final,
		ExitCode: result.ExitCode,
		Dir:      f.Executor.Dir,
		Tags:     f.Tags,
		Binding:  binding,
		Result:   result,
	})
	if err != nil {
		log.Error("failed to record command", zap.Error(err))
		return out, fmt.Errorf("record command: %w", err)
	}
	out.RecordID = id
	return out, nil
}

// execute runs the command with the terminal suspended. The terminal is
// resumed on every path once Suspend has succeeded.
func (f *Flow) execute(ctx context.Context, command string) (result *Result, err error) {
	if f.Terminal != nil {
		if err := f.Terminal.Suspend(); err != nil {
			return nil, fmt.Errorf("suspend terminal: %w", err)
		}
		defer func() {
			if rerr := f.Terminal.Resume(); rerr != nil && err == nil {
				err = fmt.Errorf("resume terminal: %w", rerr)
			}
		}()
	}
	return f.Executor.Run(ctx, command)
}
