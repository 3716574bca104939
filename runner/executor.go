package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxOutput caps captured output per execution.
const DefaultMaxOutput = 1 << 20

// Executor runs final command strings through the platform shell. The
// command is handed to the shell as one argument and never re-tokenized here,
// so values that must stay literal have to be quoted before substitution.
type Executor struct {
	// Shell is the interpreter; "sh" (or "cmd" on Windows) when empty.
	Shell string
	// Dir is the working directory; the current one when empty.
	Dir string
	// Env is appended to the inherited environment.
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Capture keeps stdout and stderr in Result.Output, up to MaxOutput bytes.
	Capture   bool
	MaxOutput int64

	Logger *zap.Logger
}

func (e *Executor) shell() (string, string) {
	if e.Shell != "" {
		if runtime.GOOS == "windows" && e.Shell == "cmd" {
			return e.Shell, "/C"
		}
		return e.Shell, "-c"
	}
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "sh", "-c"
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) command(command string) *exec.Cmd {
	shell, flag := e.shell()
	c := exec.Command(shell, flag, command)
	c.Dir = e.Dir
	if len(e.Env) > 0 {
		c.Env = append(os.Environ(), e.Env...)
	}
	return c
}

// Run executes command and waits for it. Once the process has started it is
// not cancelled; ctx is only consulted before spawning.
func (e *Executor) Run(ctx context.Context, command string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := e.command(command)
	c.Stdin = e.Stdin

	var buf *limitedBuffer
	stdout, stderr := e.Stdout, e.Stderr
	if e.Capture {
		limit := e.MaxOutput
		if limit <= 0 {
			limit = DefaultMaxOutput
		}
		buf = &limitedBuffer{max: limit}
		stdout = tee(stdout, buf)
		stderr = tee(stderr, buf)
	}
	c.Stdout = stdout
	c.Stderr = stderr

	result := &Result{Command: command, State: StatePending, ExitCode: -1}
	log := e.logger().With(zap.String("command", command), zap.String("dir", c.Dir))

	result.StartedAt = time.Now()
	if err := c.Start(); err != nil {
		result.State = StateSpawnFailed
		log.Error("spawn failed", zap.Error(err))
		return nil, &SpawnError{Shell: c.Path, Err: err}
	}
	result.State = StateRunning
	log.Debug("process started", zap.Int("pid", c.Process.Pid))

	err := c.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		log.Warn("wait returned an error", zap.Error(err))
	}
	result.finish(c.ProcessState)

	if buf != nil {
		result.Output, result.Truncated = buf.contents()
	}

	log.Debug("process finished",
		zap.Stringer("state", result.State),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func tee(w io.Writer, buf *limitedBuffer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(w, buf)
}

// limitedBuffer keeps the first max bytes written and drops the rest. stdout
// and stderr are copied into it from separate goroutines.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *limitedBuffer) contents() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String(), b.truncated
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.truncated = true
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}
