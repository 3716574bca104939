package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxStreamLine is the longest line Stream delivers. After an overlong line
// the rest of that stream is read and discarded.
const maxStreamLine = 1 << 20

// OutputMsg is sent through the channel for each line of output
type OutputMsg struct {
	Line   string
	IsErr  bool
	Done   bool
	ErrMsg string
	Result *Result
}

// Stream executes a command and streams output through a channel. The last
// message has Done set and carries the Result, or ErrMsg if the shell could
// not be started. The channel is closed afterwards.
func (e *Executor) Stream(ctx context.Context, command string, output chan<- OutputMsg) {
	defer close(output)

	if err := ctx.Err(); err != nil {
		output <- OutputMsg{Done: true, ErrMsg: err.Error()}
		return
	}

	c := e.command(command)
	c.Stdin = e.Stdin

	stdout, err := c.StdoutPipe()
	if err != nil {
		output <- OutputMsg{Done: true, ErrMsg: err.Error()}
		return
	}

	stderr, err := c.StderrPipe()
	if err != nil {
		output <- OutputMsg{Done: true, ErrMsg: err.Error()}
		return
	}

	result := &Result{Command: command, State: StatePending, ExitCode: -1, StartedAt: time.Now()}
	if err := c.Start(); err != nil {
		spawnErr := &SpawnError{Shell: c.Path, Err: err}
		output <- OutputMsg{Done: true, ErrMsg: spawnErr.Error()}
		return
	}
	result.State = StateRunning

	log := e.logger().With(zap.String("command", command), zap.String("dir", c.Dir))

	// Stream stdout and stderr concurrently
	lines := make(chan OutputMsg)
	done := make(chan struct{}, 2)

	streamReader := func(r io.Reader, isErr bool) {
		defer func() { done <- struct{}{} }()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
		for scanner.Scan() {
			lines <- OutputMsg{Line: scanner.Text(), IsErr: isErr}
		}
		if err := scanner.Err(); err != nil {
			log.Warn("output not streamed", zap.Bool("stderr", isErr), zap.Error(err))
			lines <- OutputMsg{Line: "[output line too long, rest discarded]", IsErr: true}
			_, _ = io.Copy(io.Discard, r)
		}
	}

	go streamReader(stdout, false)
	go streamReader(stderr, true)

	var buf *limitedBuffer
	if e.Capture {
		limit := e.MaxOutput
		if limit <= 0 {
			limit = DefaultMaxOutput
		}
		buf = &limitedBuffer{max: limit}
	}

	for open := 2; open > 0; {
		select {
		case msg := <-lines:
			if buf != nil {
				_, _ = buf.Write([]byte(msg.Line + "\n"))
			}
			output <- msg
		case <-done:
			open--
		}
	}

	err = c.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		log.Warn("wait returned an error", zap.Error(err))
	}
	result.finish(c.ProcessState)
	if buf != nil {
		out, truncated := buf.contents()
		result.Output = strings.TrimSuffix(out, "\n")
		result.Truncated = truncated
	}

	output <- OutputMsg{Done: true, Result: result}
}
