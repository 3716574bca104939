package runner

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// State is the lifecycle stage of one execution.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateSignaled
	StateSpawnFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateSignaled:
		return "signaled"
	case StateSpawnFailed:
		return "spawn-failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SignalExitBase is added to the signal number to form the exit code of a
// process killed by a signal, matching what POSIX shells report.
const SignalExitBase = 128

// Result describes a finished execution. A non-zero ExitCode is a normal
// outcome, not a failure of the executor.
type Result struct {
	Command   string
	State     State
	ExitCode  int
	Signal    string
	Output    string
	Truncated bool
	StartedAt time.Time
	Duration  time.Duration
}

// Success reports whether the process exited normally with status zero.
func (r *Result) Success() bool {
	return r.State == StateCompleted && r.ExitCode == 0
}

// SpawnError means the shell process could not be started at all.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// finish fills the terminal state of r from the process state.
func (r *Result) finish(ps *os.ProcessState) {
	r.Duration = time.Since(r.StartedAt)
	if ps == nil {
		r.State = StateCompleted
		r.ExitCode = -1
		return
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		r.State = StateSignaled
		r.Signal = ws.Signal().String()
		r.ExitCode = SignalExitBase + int(ws.Signal())
		return
	}
	r.State = StateCompleted
	r.ExitCode = ps.ExitCode()
}
