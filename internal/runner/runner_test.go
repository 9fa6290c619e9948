package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunTestsPass(t *testing.T) {
	r := New()
	res := r.RunTests(context.Background(), t.TempDir(), "echo ok", 5*time.Second)
	assert.True(t, res.Passed)
	assert.False(t, res.TimedOut)
	assert.Equal(t, "ok", res.Output)
}

func TestRunTestsFailCapturesOutput(t *testing.T) {
	r := New()
	res := r.RunTests(context.Background(), t.TempDir(), "echo boom >&2; exit 3", 5*time.Second)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Output, "boom")
}

func TestRunTestsTimeoutKillsProcess(t *testing.T) {
	r := New()
	start := time.Now()
	res := r.RunTests(context.Background(), t.TempDir(), "sleep 30", 200*time.Millisecond)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Passed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunTestsTimeoutKillsSpawnedChildren(t *testing.T) {
	r := New()
	start := time.Now()
	// The background sleep inherits the output pipes; the whole group must
	// be killed or the run blocks until it exits on its own.
	res := r.RunTests(context.Background(), t.TempDir(), "sleep 30 & sleep 30", 200*time.Millisecond)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Passed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestObserveCleanExit(t *testing.T) {
	r := New()
	obs := r.Observe(context.Background(), t.TempDir(), "echo done", 2*time.Second)
	assert.Equal(t, OutcomeCleanExit, obs.Outcome)
	assert.Equal(t, "done", obs.Output)
}

func TestObserveCrash(t *testing.T) {
	r := New()
	obs := r.Observe(context.Background(), t.TempDir(), "echo trace >&2; exit 1", 2*time.Second)
	assert.Equal(t, OutcomeCrashed, obs.Outcome)
	assert.Contains(t, obs.Output, "trace")
}

func TestObserveLongRunningIsTerminated(t *testing.T) {
	r := New()
	start := time.Now()
	obs := r.Observe(context.Background(), t.TempDir(), "sleep 30", 300*time.Millisecond)
	assert.Equal(t, OutcomeLongRunning, obs.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second, "process must be killed at the window edge")
}

func TestObserveWindowKillsSpawnedChildren(t *testing.T) {
	r := New()
	start := time.Now()
	obs := r.Observe(context.Background(), t.TempDir(), "sleep 30 & sleep 30", 300*time.Millisecond)
	assert.Equal(t, OutcomeLongRunning, obs.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second, "grandchildren must not outlive the window")
}

func TestObserveStartFailure(t *testing.T) {
	r := New()
	// A bad working directory fails at Start.
	obs := r.Observe(context.Background(), "/nonexistent-dir-for-test", "echo hi", time.Second)
	assert.Equal(t, OutcomeCrashed, obs.Outcome)
	assert.NotEmpty(t, obs.Output)
}

func TestObserveCanceledContext(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	obs := r.Observe(ctx, t.TempDir(), "sleep 30", 10*time.Second)
	assert.Equal(t, OutcomeCrashed, obs.Outcome)
}

func TestRunnerExtraEnv(t *testing.T) {
	r := &Runner{Env: []string{"FACTORY_MARK=yes"}}
	res := r.RunTests(context.Background(), t.TempDir(), "echo $FACTORY_MARK", time.Second)
	assert.True(t, res.Passed)
	assert.Equal(t, "yes", res.Output)
}

func TestTruncateKeepsTail(t *testing.T) {
	long := strings.Repeat("x", maxOutput) + "LAST_FRAME"
	out := truncate(long)
	assert.LessOrEqual(t, len(out), maxOutput+64)
	assert.Contains(t, out, "LAST_FRAME")
	assert.True(t, strings.HasPrefix(out, "...(truncated)..."))
}
