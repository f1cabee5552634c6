// Package executor runs the target binary once per input under controlled
// I/O and signal discipline (§4.3).
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fEst1ck/coverage-playground/internal/channel"
	"github.com/fEst1ck/coverage-playground/internal/config"
	"github.com/fEst1ck/coverage-playground/pkg/types"
)

// AtAtToken is the FileAt placeholder in the target's argument list (§6).
const AtAtToken = config.AtAtToken

// gracePeriod is how long the Executor waits after a polite terminate
// before escalating to an unconditional kill (§4.3).
const gracePeriod = 500 * time.Millisecond

// crashSignals are the signals §4.3 classifies as a Crash. Any other
// terminating signal is logged but reported Normal, matching the source.
var crashSignals = map[syscall.Signal]bool{
	syscall.SIGSEGV: true,
	syscall.SIGABRT: true,
	syscall.SIGBUS:  true,
}

// Options configures an Executor, in the style of the teacher's
// *Options/DefaultOptions construction pairs.
type Options struct {
	TargetCmd   []string
	Delivery    types.DeliveryMode
	Timeout     time.Duration
	ScratchFile string // FileAt mode only: the path substituted for @@
}

// Executor spawns the target once per Run call.
type Executor struct {
	opts Options
	ch   *channel.Channel
	log  *slog.Logger

	spawnErrors int64
	timeouts    int64
}

// New creates an Executor bound to a coverage channel.
func New(opts Options, ch *channel.Channel, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if opts.ScratchFile == "" {
		opts.ScratchFile = filepath.Join(os.TempDir(), "covfuzz_input")
	}
	return &Executor{opts: opts, ch: ch, log: log}
}

// substituteArgs replaces every occurrence of the @@ token with path. §9
// Open Question (a) is resolved in favor of replacing ALL occurrences: a
// target invoked as `cmp @@ @@.orig` should see the same literal path in
// both positions.
func substituteArgs(args []string, path string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.ReplaceAll(a, AtAtToken, path)
	}
	return out
}

// writeAtomic writes data to path by writing a temp file in the same
// directory and renaming it into place (§4.3 FileAt delivery).
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".covfuzz-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Run executes the target once against input, returning its RunOutcome.
//
// Ordering is strictly: reset the coverage region, spawn, wait (bounded by
// timeout), snapshot the region (§4.1, §5). The region must never be reset
// while a child that reads it is still alive; Run enforces this by
// synchronously waiting (or killing) before it ever touches Reset again on
// the next call.
func (e *Executor) Run(ctx context.Context, input []byte) (types.RunOutcome, error) {
	e.ch.Reset()

	name := e.opts.TargetCmd[0]
	args := append([]string{}, e.opts.TargetCmd[1:]...)

	if e.opts.Delivery == types.FileAt {
		if err := writeAtomic(e.opts.ScratchFile, input); err != nil {
			return types.RunOutcome{}, fmt.Errorf("executor: writing scratch input: %w", err)
		}
		args = substituteArgs(args, e.opts.ScratchFile)
	}

	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), e.ch.Env())
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if e.opts.Delivery == types.Stdin {
		cmd.Stdin = bytes.NewReader(input)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		atomic.AddInt64(&e.spawnErrors, 1)
		e.log.Warn("spawn error", "target", name, "err", err)
		return types.RunOutcome{}, fmt.Errorf("executor: spawn: %w", err)
	}

	class, signal := e.wait(ctx, cmd)
	duration := time.Since(start)
	trace := e.ch.Snapshot()

	if class == types.Timeout {
		atomic.AddInt64(&e.timeouts, 1)
	}

	return types.RunOutcome{
		Class:    class,
		Signal:   signal,
		Trace:    trace,
		Duration: duration,
	}, nil
}

// wait blocks for the child's exit, enforcing the configured timeout with a
// terminate-then-kill escalation, and classifies the outcome (§4.3). An
// external cancellation of ctx (e.g. the fuzzer's own shutdown) kills the
// current child at once with SIGKILL, without the timeout's SIGTERM and
// grace period, and reports the run as Normal.
func (e *Executor) wait(ctx context.Context, cmd *exec.Cmd) (types.ExitClass, int) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return classify(cmd, err)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return types.Normal, 0
	case <-time.After(e.opts.Timeout):
		e.log.Warn("execution timed out", "target", cmd.Path, "timeout", e.opts.Timeout)
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(gracePeriod):
			_ = cmd.Process.Kill()
			<-done
		}
		return types.Timeout, 0
	}
}

// classify maps a finished process's exit/signal state onto §4.3's
// classification rules.
func classify(cmd *exec.Cmd, waitErr error) (types.ExitClass, int) {
	state := cmd.ProcessState
	if state == nil {
		return types.Normal, 0
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return types.Normal, 0
	}
	if ws.Signaled() {
		sig := ws.Signal()
		if crashSignals[sig] {
			return types.Crash, int(sig)
		}
		return types.Normal, 0
	}
	// Natural termination, any exit code.
	_ = waitErr
	return types.Normal, 0
}

// SpawnErrors returns the count of failed spawns, for Stats.
func (e *Executor) SpawnErrors() int64 { return atomic.LoadInt64(&e.spawnErrors) }

// Timeouts returns the count of timed-out runs, for Stats.
func (e *Executor) Timeouts() int64 { return atomic.LoadInt64(&e.timeouts) }
