package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fEst1ck/coverage-playground/internal/channel"
	"github.com/fEst1ck/coverage-playground/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteArgs_ReplacesAllOccurrences(t *testing.T) {
	got := substituteArgs([]string{"cmp", "@@", "@@.orig"}, "/tmp/x")
	assert.Equal(t, []string{"cmp", "/tmp/x", "/tmp/x.orig"}, got)
}

func TestWriteAtomic_ByteForByte(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scratch")

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, writeAtomic(path, data))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func newTestChannel(t *testing.T) *channel.Channel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shm.bin")
	ch, err := channel.Create(path, 1024)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestExecutor_Run_NormalExit(t *testing.T) {
	ch := newTestChannel(t)
	e := New(Options{
		TargetCmd: []string{"/bin/sh", "-c", "cat >/dev/null"},
		Delivery:  types.Stdin,
		Timeout:   2 * time.Second,
	}, ch, nil)

	outcome, err := e.Run(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, types.Normal, outcome.Class)
}

func TestExecutor_Run_Crash(t *testing.T) {
	ch := newTestChannel(t)
	e := New(Options{
		TargetCmd: []string{"/bin/sh", "-c", "kill -SEGV $$"},
		Delivery:  types.Stdin,
		Timeout:   2 * time.Second,
	}, ch, nil)

	outcome, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.Crash, outcome.Class)
}

func TestExecutor_Run_Timeout(t *testing.T) {
	ch := newTestChannel(t)
	e := New(Options{
		TargetCmd: []string{"/bin/sh", "-c", "sleep 5"},
		Delivery:  types.Stdin,
		Timeout:   100 * time.Millisecond,
	}, ch, nil)

	outcome, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.Timeout, outcome.Class)
	assert.Equal(t, int64(1), e.Timeouts())
}

// TestExecutor_Run_ContextCancellationKillsChild covers §5's cancellation
// model: an external interrupt kills the in-flight child immediately,
// rather than waiting out the full per-run timeout.
func TestExecutor_Run_ContextCancellationKillsChild(t *testing.T) {
	ch := newTestChannel(t)
	e := New(Options{
		TargetCmd: []string{"/bin/sh", "-c", "sleep 5"},
		Delivery:  types.Stdin,
		Timeout:   10 * time.Second,
	}, ch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := e.Run(ctx, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestExecutor_Run_FileAt is property S6 of §8: the target observes the
// input via a file whose bytes equal the mutant exactly.
func TestExecutor_Run_FileAt(t *testing.T) {
	ch := newTestChannel(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "observed")
	scratch := filepath.Join(dir, "scratch_input")

	e := New(Options{
		TargetCmd:   []string{"/bin/sh", "-c", "cp @@ " + out},
		Delivery:    types.FileAt,
		Timeout:     2 * time.Second,
		ScratchFile: scratch,
	}, ch, nil)

	for i := 0; i < 16; i++ {
		data := []byte{byte(i), byte(i * 7), byte(i * 13)}
		_, err := e.Run(context.Background(), data)
		require.NoError(t, err)

		got, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}
