package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fEst1ck/coverage-playground/internal/config"
	"github.com/stretchr/testify/require"
)

// These tests exercise Engine.New/Run end to end against /bin/sh, avoiding
// any dependency on a real instrumented target: nothing writes to the
// coverage region after Reset, so every Snapshot is a well-formed, empty
// trace — uninteresting, but good enough to prove the loop's wiring.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	seedDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, "seed1"), []byte("hello"), 0o644))

	cfg := config.DefaultConfig()
	cfg.SeedDir = seedDir
	cfg.OutputDir = t.TempDir()
	cfg.TargetCmd = []string{"/bin/sh", "-c", "cat >/dev/null"}
	cfg.Delivery = config.DetectDelivery(cfg.TargetCmd)
	cfg.Timeout = 2 * time.Second
	cfg.StatsPeriod = time.Hour // don't let the ticker fire during the test
	cfg.RegionSize = 64
	return cfg
}

func TestEngine_RunSeedsAndStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	e, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop within timeout after cancel")
	}
}

func TestEngine_RunFailsOnEmptySeedDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.SeedDir = t.TempDir() // empty

	e, err := New(cfg, nil)
	require.NoError(t, err)
	defer e.ch.Close()

	err = e.Run(context.Background())
	require.Error(t, err)
}
