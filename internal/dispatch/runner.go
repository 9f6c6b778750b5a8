package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures one subprocess invocation.
type Result struct {
	// Stdout and Stderr hold the captured output as text.
	Stdout string
	Stderr string

	// ExitCode is the process exit code, or -1 if the process did not
	// run to completion (timeout, start failure).
	ExitCode int

	// TimedOut is set when the invocation exceeded its deadline. A
	// timeout is reported distinctly from a non-zero exit.
	TimedOut bool

	// Err holds the underlying invocation error, if any.
	Err error
}

// OK reports whether the invocation completed with exit code 0.
func (r Result) OK() bool {
	return !r.TimedOut && r.Err == nil && r.ExitCode == 0
}

// Runner invokes external commands. It is the capability boundary for
// subprocess execution, so tests can substitute a recording stub and a
// future design can swap in pooled or async invocation.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// ExecRunner runs commands with os/exec, blocking until the command exits
// or the context deadline fires.
type ExecRunner struct {
	// Dir is the working directory for invoked commands. Empty means
	// the current directory.
	Dir string
}

// Run executes the command and captures its output. It never returns a
// partial Result: output produced before a timeout is retained.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.Err = ctx.Err()
		return res
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		res.Err = err
		return res
	}

	res.ExitCode = 0
	return res
}
