package pipeline

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Command describes one external task stage.
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

// Result is the outcome of one finished task. A nonzero ExitCode is an
// expected outcome, not a Runner error; the Runner errors only when the
// executable cannot be started at all.
type Result struct {
	Path     string
	Args     []string
	Started  time.Time
	Stopped  time.Time
	ExitCode int
	Lines    []string // stdout and stderr interleaved as produced
}

type Runner struct{}

// Run launches the command and blocks until it exits, streaming stdout and
// stderr line by line into one ordered buffer. Ordering between the two
// streams is best-effort. No stdin is fed.
func (Runner) Run(ctx context.Context, proto Command) (Result, error) {
	res := Result{
		Path: proto.Path,
		Args: append([]string(nil), proto.Args...),
	}

	if proto.Timeout == 0 {
		slog.WarnContext(ctx, "command has no timeout", "path", proto.Path)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, res.Path, res.Args...)
	if proto.Env != nil {
		cmd.Env = append([]string(nil), proto.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, err
	}

	var mx sync.Mutex
	collect := func(r io.Reader) func() error {
		return func() error {
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				mx.Lock()
				res.Lines = append(res.Lines, scanner.Text())
				mx.Unlock()
			}
			err := scanner.Err()
			if err != nil && !errors.Is(err, io.EOF) {
				slog.ErrorContext(ctx, "processing task output", "path", res.Path, "error", err)
			}
			return nil
		}
	}

	res.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		res.Stopped = time.Now().UTC()
		return res, err
	}

	var g errgroup.Group
	g.Go(collect(stdout))
	g.Go(collect(stderr))
	_ = g.Wait() // pipes must be drained before Wait

	werr := cmd.Wait()
	res.Stopped = time.Now().UTC()
	res.ExitCode = exitCode(cmd, werr)

	var exitErr *exec.ExitError
	if werr != nil && !errors.As(werr, &exitErr) {
		return res, werr
	}
	return res, nil
}

// exitCode maps the process state to a shell-style exit status:
// the verbatim code for a normal exit, 128+signal when killed.
func exitCode(cmd *exec.Cmd, werr error) int {
	state := cmd.ProcessState
	if werr == nil {
		return 0
	}
	if state == nil {
		return -1
	}
	if state.Exited() {
		return state.ExitCode()
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return -1
}
