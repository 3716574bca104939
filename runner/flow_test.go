package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdvault/template"
)

// scriptedCollector answers from a fixed map and records prompt order.
type scriptedCollector struct {
	answers template.Binding
	asked   []string
	err     error
}

func (c *scriptedCollector) Collect(_ context.Context, params *template.ParameterSet) (template.Binding, error) {
	if c.err != nil {
		return nil, c.err
	}
	b := template.Binding{}
	for _, name := range params.Names() {
		c.asked = append(c.asked, name)
		if v, ok := c.answers[name]; ok {
			b[name] = v
		}
	}
	return b, nil
}

type fakeTerminal struct {
	events    []string
	suspendOK bool
}

func (f *fakeTerminal) Suspend() error {
	f.events = append(f.events, "suspend")
	if !f.suspendOK {
		return errors.New("no tty")
	}
	return nil
}

func (f *fakeTerminal) Resume() error {
	f.events = append(f.events, "resume")
	return nil
}

type fakeRecorder struct {
	records []Record
	err     error
}

func (f *fakeRecorder) Save(rec Record) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

func TestFlowRun(t *testing.T) {
	collector := &scriptedCollector{answers: template.Binding{"message": "fix bug"}}
	term := &fakeTerminal{suspendOK: true}
	rec := &fakeRecorder{}
	dir := t.TempDir()

	f := &Flow{
		Collector: collector,
		Executor:  &Executor{Dir: dir, Capture: true},
		Terminal:  term,
		Recorder:  rec,
		Tags:      []string{"git"},
	}

	out, err := f.Run(context.Background(), "echo msg @message:Commit message")
	require.NoError(t, err)

	assert.Equal(t, "echo msg fix bug", out.Command)
	assert.Equal(t, "msg fix bug\n", out.Result.Output)
	assert.Equal(t, int64(1), out.RecordID)
	assert.Equal(t, []string{"message"}, collector.asked)
	assert.Equal(t, []string{"suspend", "resume"}, term.events)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "echo msg fix bug", rec.records[0].Command)
	assert.Equal(t, 0, rec.records[0].ExitCode)
	assert.Equal(t, dir, rec.records[0].Dir)
	assert.Equal(t, []string{"git"}, rec.records[0].Tags)
}

func TestFlowPromptOrderFollowsFirstOccurrence(t *testing.T) {
	collector := &scriptedCollector{answers: template.Binding{"b": "2", "a": "1", "c": "3"}}
	f := &Flow{Collector: collector, Executor: &Executor{Capture: true}}

	out, err := f.Run(context.Background(), "echo @b @a:First @b @c @a")
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, collector.asked)
	assert.Equal(t, "echo 2 1 2 3 1", out.Command)
	assert.Equal(t, "2 1 2 3 1\n", out.Result.Output)
}

func TestFlowNoPlaceholdersSkipsCollector(t *testing.T) {
	collector := &scriptedCollector{err: errors.New("must not be called")}
	f := &Flow{Collector: collector, Executor: &Executor{Capture: true}}

	out, err := f.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "echo hello", out.Command)
	assert.Empty(t, collector.asked)
}

func TestFlowSyntaxErrorBeforePrompting(t *testing.T) {
	collector := &scriptedCollector{}
	rec := &fakeRecorder{}
	f := &Flow{Collector: collector, Executor: &Executor{}, Recorder: rec}

	out, err := f.Run(context.Background(), "echo @name:")
	assert.Nil(t, out)

	var synErr *template.SyntaxError
	require.True(t, errors.As(err, &synErr))
	assert.Equal(t, 10, synErr.Pos)
	assert.Empty(t, collector.asked)
	assert.Empty(t, rec.records)
}

func TestFlowAbortRunsNothing(t *testing.T) {
	term := &fakeTerminal{suspendOK: true}
	rec := &fakeRecorder{}
	f := &Flow{
		Collector: &scriptedCollector{err: ErrCollectionAborted},
		Executor:  &Executor{},
		Terminal:  term,
		Recorder:  rec,
	}

	out, err := f.Run(context.Background(), "touch @file")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCollectionAborted)
	assert.Empty(t, term.events)
	assert.Empty(t, rec.records)
}

func TestFlowUnboundParameter(t *testing.T) {
	rec := &fakeRecorder{}
	f := &Flow{
		Collector: &scriptedCollector{answers: template.Binding{"a": "1"}},
		Executor:  &Executor{},
		Recorder:  rec,
	}

	_, err := f.Run(context.Background(), "echo @a @b")

	var unbound *template.UnboundParameterError
	require.True(t, errors.As(err, &unbound))
	assert.Equal(t, "b", unbound.Name)
	assert.Empty(t, rec.records)
}

func TestFlowWithoutCollector(t *testing.T) {
	f := &Flow{Executor: &Executor{}}
	_, err := f.Run(context.Background(), "echo @a")

	var unbound *template.UnboundParameterError
	assert.True(t, errors.As(err, &unbound))
}

func TestFlowNonZeroExitIsRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	f := &Flow{Executor: &Executor{}, Recorder: rec}

	out, err := f.Run(context.Background(), "exit 7")
	require.NoError(t, err)
	assert.Equal(t, 7, out.Result.ExitCode)
	assert.Equal(t, StateCompleted, out.Result.State)

	require.Len(t, rec.records, 1)
	assert.Equal(t, 7, rec.records[0].ExitCode)
}

func TestFlowSpawnFailureRestoresTerminal(t *testing.T) {
	term := &fakeTerminal{suspendOK: true}
	rec := &fakeRecorder{}
	f := &Flow{
		Executor: &Executor{Shell: "/nonexistent/shell"},
		Terminal: term,
		Recorder: rec,
	}

	out, err := f.Run(context.Background(), "echo hi")
	assert.Nil(t, out)

	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, []string{"suspend", "resume"}, term.events)
	assert.Empty(t, rec.records)
}

func TestFlowSuspendFailure(t *testing.T) {
	term := &fakeTerminal{}
	f := &Flow{Executor: &Executor{}, Terminal: term}

	_, err := f.Run(context.Background(), "echo hi")
	assert.ErrorContains(t, err, "suspend terminal")
	assert.Equal(t, []string{"suspend"}, term.events)
}

func TestFlowRecorderFailureKeepsOutcome(t *testing.T) {
	f := &Flow{Executor: &Executor{}, Recorder: &fakeRecorder{err: errors.New("disk full")}}

	out, err := f.Run(context.Background(), "true")
	require.NotNil(t, out)
	assert.Equal(t, 0, out.Result.ExitCode)
	assert.ErrorContains(t, err, "disk full")
}

func TestFlowPrepare(t *testing.T) {
	f := &Flow{Collector: PresetCollector{Values: template.Binding{"dir": "/tmp"}}}

	final, b, err := f.Prepare(context.Background(), "ls @dir:Directory -la")
	require.NoError(t, err)
	assert.Equal(t, "ls /tmp -la", final)
	assert.Equal(t, template.Binding{"dir": "/tmp"}, b)
}

func TestFlowLiteralSkipsTemplating(t *testing.T) {
	collector := &scriptedCollector{err: errors.New("must not be called")}
	rec := &fakeRecorder{}
	f := &Flow{Collector: collector, Executor: &Executor{Capture: true}, Recorder: rec, Literal: true}

	out, err := f.Run(context.Background(), "echo git@github.com:me/repo.git a@b:")
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:me/repo.git a@b:\n", out.Result.Output)
	assert.Empty(t, out.Binding)
	require.Len(t, rec.records, 1)
	assert.Equal(t, "echo git@github.com:me/repo.git a@b:", rec.records[0].Command)
}

func TestFlowWithoutExecutor(t *testing.T) {
	collector := &scriptedCollector{answers: template.Binding{"a": "1"}}
	f := &Flow{Collector: collector}

	out, err := f.Run(context.Background(), "echo @a")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrNoExecutor)
	assert.Empty(t, collector.asked)
}
