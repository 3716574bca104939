package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdvault/template"
)

func paramsOf(t *testing.T, raw string) *template.ParameterSet {
	t.Helper()
	tmpl, err := template.Parse(raw)
	require.NoError(t, err)
	return tmpl.Params()
}

func TestPresetCollector(t *testing.T) {
	params := paramsOf(t, "scp @file @host:Host")

	b, err := PresetCollector{Values: template.Binding{"file": "a.txt", "host": "srv", "extra": "x"}}.
		Collect(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, template.Binding{"file": "a.txt", "host": "srv"}, b)

	_, err = PresetCollector{Values: template.Binding{"file": "a.txt"}}.Collect(context.Background(), params)
	var unbound *template.UnboundParameterError
	require.True(t, errors.As(err, &unbound))
	assert.Equal(t, "host", unbound.Name)
}

func TestChainCollector(t *testing.T) {
	params := paramsOf(t, "deploy @app @env:Environment @region")
	next := &scriptedCollector{answers: template.Binding{"app": "ignored", "env": "prod", "region": "eu"}}

	b, err := ChainCollector{Preset: template.Binding{"app": "api"}, Next: next}.
		Collect(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, template.Binding{"app": "api", "env": "prod", "region": "eu"}, b)
	assert.Equal(t, []string{"env", "region"}, next.asked)
}

func TestChainCollectorAllPreset(t *testing.T) {
	params := paramsOf(t, "echo @a")
	next := &scriptedCollector{err: errors.New("must not be called")}

	b, err := ChainCollector{Preset: template.Binding{"a": "1"}, Next: next}.Collect(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, template.Binding{"a": "1"}, b)
}

func TestChainCollectorWithoutNext(t *testing.T) {
	params := paramsOf(t, "echo @a @b")

	_, err := ChainCollector{Preset: template.Binding{"a": "1"}}.Collect(context.Background(), params)
	var unbound *template.UnboundParameterError
	require.True(t, errors.As(err, &unbound))
	assert.Equal(t, "b", unbound.Name)
}

func TestChainCollectorPropagatesAbort(t *testing.T) {
	params := paramsOf(t, "echo @a")
	_, err := ChainCollector{Next: &scriptedCollector{err: ErrCollectionAborted}}.Collect(context.Background(), params)
	assert.ErrorIs(t, err, ErrCollectionAborted)
}

func TestLineCollector(t *testing.T) {
	params := paramsOf(t, "git push @remote:Remote @branch:Branch")
	var out bytes.Buffer

	c := LineCollector{
		In:       strings.NewReader("\nfeature/x\n"),
		Out:      &out,
		Defaults: template.Binding{"remote": "origin"},
	}
	b, err := c.Collect(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, template.Binding{"remote": "origin", "branch": "feature/x"}, b)
	assert.Equal(t, "remote (Remote) [origin]: branch (Branch): ", out.String())
}

func TestLineCollectorLastLineWithoutNewline(t *testing.T) {
	params := paramsOf(t, "echo @a")
	b, err := LineCollector{In: strings.NewReader("value"), Out: &bytes.Buffer{}}.Collect(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "value", b["a"])
}

func TestLineCollectorLeavesRestOfInput(t *testing.T) {
	params := paramsOf(t, "cat > @file")
	in := strings.NewReader("out.txt\nchild data\n")

	b, err := LineCollector{In: in, Out: &bytes.Buffer{}}.Collect(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "out.txt", b["file"])

	rest, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "child data\n", string(rest))
}

func TestLineCollectorEOFAborts(t *testing.T) {
	params := paramsOf(t, "echo @a @b")
	_, err := LineCollector{In: strings.NewReader("one\n"), Out: &bytes.Buffer{}}.Collect(context.Background(), params)
	assert.ErrorIs(t, err, ErrCollectionAborted)
}

func TestLineCollectorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	params := paramsOf(t, "echo @a")
	_, err := LineCollector{In: strings.NewReader("x\n"), Out: &bytes.Buffer{}}.Collect(ctx, params)
	assert.ErrorIs(t, err, ErrCollectionAborted)
}

func TestParseAssignments(t *testing.T) {
	b, err := ParseAssignments([]string{"name=world", "@msg=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, template.Binding{"name": "world", "msg": "a=b", "empty": ""}, b)

	_, err = ParseAssignments([]string{"novalue"})
	assert.ErrorContains(t, err, "expected name=value")

	_, err = ParseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestCollectorFunc(t *testing.T) {
	var c Collector = CollectorFunc(func(_ context.Context, ps *template.ParameterSet) (template.Binding, error) {
		return template.Binding{"x": "1"}, nil
	})
	b, err := c.Collect(context.Background(), paramsOf(t, "echo @x"))
	require.NoError(t, err)
	assert.Equal(t, "1", b["x"])
}
