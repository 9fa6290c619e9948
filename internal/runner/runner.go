// Package runner executes project commands in scoped processes: test runs
// with a hard deadline and short observation launches used to classify
// whether a program crashes, exits cleanly, or keeps serving.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Outcome classifies an observed launch.
type Outcome int

const (
	// OutcomeCrashed means the process exited non-zero (or failed to start)
	// within the observation window.
	OutcomeCrashed Outcome = iota
	// OutcomeCleanExit means the process finished with exit code 0 within
	// the window. Normal for batch programs.
	OutcomeCleanExit
	// OutcomeLongRunning means the process was still alive when the window
	// closed. Expected for servers; the process is terminated.
	OutcomeLongRunning
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCrashed:
		return "crashed"
	case OutcomeCleanExit:
		return "clean_exit"
	case OutcomeLongRunning:
		return "long_running"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result holds the outcome of a bounded test run.
type Result struct {
	Passed   bool
	TimedOut bool
	Output   string
}

// Observation holds the outcome of a launch classification.
type Observation struct {
	Outcome Outcome
	Output  string
}

const (
	// DefaultTestTimeout bounds a single test-suite run.
	DefaultTestTimeout = 10 * time.Second
	// DefaultObserveWindow is how long a launched program is watched before
	// being declared long-running.
	DefaultObserveWindow = 5 * time.Second

	// maxOutput caps captured process output fed back into prompts.
	maxOutput = 4096
)

// Runner starts commands inside a project directory.
type Runner struct {
	// Env entries are appended to the inherited environment.
	Env []string
}

// New returns a Runner with no extra environment.
func New() *Runner {
	return &Runner{}
}

// RunTests executes cmd in dir and waits until it finishes or the timeout
// elapses. The process tree is killed on timeout and on context
// cancellation; combined output is captured and truncated.
func (r *Runner) RunTests(ctx context.Context, dir, cmd string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := r.command(ctx, dir, cmd)
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	err := c.Run()
	out := truncate(buf.String())
	if ctx.Err() == context.DeadlineExceeded {
		return Result{TimedOut: true, Output: out}
	}
	return Result{Passed: err == nil, Output: out}
}

// Observe launches cmd in dir and watches it for the given window. A
// process alive at the end of the window is long-running and gets
// terminated; an exit within the window is classified by its status.
func (r *Runner) Observe(ctx context.Context, dir, cmd string, window time.Duration) Observation {
	if window <= 0 {
		window = DefaultObserveWindow
	}

	c := r.command(ctx, dir, cmd)
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	if err := c.Start(); err != nil {
		return Observation{Outcome: OutcomeCrashed, Output: truncate(err.Error())}
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case err := <-done:
		out := truncate(buf.String())
		if err != nil {
			return Observation{Outcome: OutcomeCrashed, Output: out}
		}
		return Observation{Outcome: OutcomeCleanExit, Output: out}
	case <-ctx.Done():
		_ = killGroup(c)
		<-done
		return Observation{Outcome: OutcomeCrashed, Output: truncate(buf.String())}
	case <-timer.C:
		_ = killGroup(c)
		<-done
		return Observation{Outcome: OutcomeLongRunning, Output: truncate(buf.String())}
	}
}

func (r *Runner) command(ctx context.Context, dir, cmd string) *exec.Cmd {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = dir
	// The shell gets its own process group so the whole tree can be
	// signalled: killing only the shell leaves grandchildren holding the
	// output pipes, and Wait would block until they exit on their own.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error { return killGroup(c) }
	c.WaitDelay = time.Second
	if len(r.Env) > 0 {
		c.Env = append(c.Environ(), r.Env...)
	}
	return c
}

// killGroup signals every process in c's group.
func killGroup(c *exec.Cmd) error {
	if c.Process == nil {
		return nil
	}
	return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxOutput {
		return s
	}
	// Keep the tail: tracebacks put the useful frame last.
	return "...(truncated)...\n" + s[len(s)-maxOutput:]
}
