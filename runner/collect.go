package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cmdvault/template"
)

// ErrCollectionAborted is returned by a Collector when the user cancels
// prompting. Nothing is run or recorded afterwards.
var ErrCollectionAborted = errors.New("parameter collection aborted")

// Collector supplies a value for every parameter of a set. Interactive
// implementations must prompt in the set's order.
type Collector interface {
	Collect(ctx context.Context, params *template.ParameterSet) (template.Binding, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, params *template.ParameterSet) (template.Binding, error)

func (f CollectorFunc) Collect(ctx context.Context, params *template.ParameterSet) (template.Binding, error) {
	return f(ctx, params)
}

// PresetCollector binds parameters from values supplied up front, such as
// name=value command line arguments.
type PresetCollector struct {
	Values template.Binding
}

func (c PresetCollector) Collect(_ context.Context, params *template.ParameterSet) (template.Binding, error) {
	b := make(template.Binding, params.Len())
	for _, name := range params.Names() {
		v, ok := c.Values[name]
		if !ok {
			return nil, &template.UnboundParameterError{Name: name}
		}
		b[name] = v
	}
	return b, nil
}

// ChainCollector takes what it can from Preset and asks Next for the rest.
type ChainCollector struct {
	Preset template.Binding
	Next   Collector
}

func (c ChainCollector) Collect(ctx context.Context, params *template.ParameterSet) (template.Binding, error) {
	b := make(template.Binding, params.Len())
	for _, name := range params.Names() {
		if v, ok := c.Preset[name]; ok {
			b[name] = v
		}
	}

	rest := params.Without(b)
	if rest.Len() == 0 {
		return b, nil
	}
	if c.Next == nil {
		name, _ := b.Missing(params)
		return nil, &template.UnboundParameterError{Name: name}
	}

	more, err := c.Next.Collect(ctx, rest)
	if err != nil {
		return nil, err
	}
	for k, v := range more {
		b[k] = v
	}
	return b, nil
}

// LineCollector prompts on Out and reads one line per parameter from In.
// An empty answer falls back to Defaults when one exists. End of input before
// every parameter is answered aborts the collection. In is read no further
// than the last answer, so the rest stays available to the command.
type LineCollector struct {
	In       io.Reader
	Out      io.Writer
	Defaults template.Binding
}

func (c LineCollector) Collect(ctx context.Context, params *template.ParameterSet) (template.Binding, error) {
	b := make(template.Binding, params.Len())

	for _, p := range params.Params() {
		if err := ctx.Err(); err != nil {
			return nil, ErrCollectionAborted
		}

		fmt.Fprint(c.Out, promptLabel(p, c.Defaults[p.Name]))
		line, err := readLine(c.In)
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, ErrCollectionAborted
			}
			return nil, fmt.Errorf("read value for @%s: %w", p.Name, err)
		}

		value := strings.TrimRight(line, "\r\n")
		if value == "" {
			if def, ok := c.Defaults[p.Name]; ok {
				value = def
			}
		}
		b[p.Name] = value
	}
	return b, nil
}

// readLine reads up to and including the next newline one byte at a time.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n > 0 {
			sb.WriteByte(b[0])
			if b[0] == '\n' {
				return sb.String(), nil
			}
		}
		if err != nil {
			return sb.String(), err
		}
	}
}

func promptLabel(p template.Param, def string) string {
	var sb strings.Builder
	sb.WriteString(p.Name)
	if p.Description != "" {
		sb.WriteString(" (" + p.Description + ")")
	}
	if def != "" {
		sb.WriteString(" [" + def + "]")
	}
	sb.WriteString(": ")
	return sb.String()
}

// ParseAssignments turns name=value arguments into a Binding.
func ParseAssignments(args []string) (template.Binding, error) {
	b := make(template.Binding, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", arg)
		}
		b[strings.TrimPrefix(name, string(template.Marker))] = value
	}
	return b, nil
}
