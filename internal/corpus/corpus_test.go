package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fEst1ck/coverage-playground/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct{}

func (fakeExecutor) Run(ctx context.Context, input []byte) (types.RunOutcome, error) {
	return types.RunOutcome{Class: types.Normal, Trace: types.Trace{Edges: []uint32{1}}}, nil
}

type fakeObserver struct{}

func (fakeObserver) Observe(trace types.Trace) types.ObservationReport {
	return types.ObservationReport{Novelty: map[types.Metric]bool{types.Edge: true}}
}

func writeSeedFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestSeedFromDirectory_AdmitsAllRegularFiles(t *testing.T) {
	seedDir := t.TempDir()
	writeSeedFile(t, seedDir, "a", []byte("one"))
	writeSeedFile(t, seedDir, "b", []byte("two"))
	require.NoError(t, os.Mkdir(filepath.Join(seedDir, "subdir"), 0o755))

	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, c.SeedFromDirectory(context.Background(), seedDir, fakeExecutor{}, fakeObserver{}))
	assert.Equal(t, 2, c.Size())
}

func TestConsider_AdmitsOnlyOnNovelFeedback(t *testing.T) {
	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	parent := c.newSeed([]byte("seed"), "initial", 0, 0)

	feedback := types.NewMetricSet(types.Edge)

	// Not novel under feedback metric -> rejected.
	notNovel := types.ObservationReport{Novelty: map[types.Metric]bool{types.Edge: false, types.Block: true}}
	_, admitted := c.Consider(parent, []byte("m1"), types.RunOutcome{Class: types.Normal}, notNovel, feedback)
	assert.False(t, admitted)

	// Novel under feedback metric -> admitted with level = parent+1.
	novel := types.ObservationReport{Novelty: map[types.Metric]bool{types.Edge: true}}
	seed, admitted := c.Consider(parent, []byte("m2"), types.RunOutcome{Class: types.Normal}, novel, feedback)
	require.True(t, admitted)
	assert.Equal(t, parent.Level+1, seed.Level)
	assert.Equal(t, int64(1), parent.ChildNovelties)
}

// TestConsider_CrashNeverAdmitted is property (7) of §8: crashing inputs
// never appear in queue/, regardless of feedback novelty.
func TestConsider_CrashNeverAdmitted(t *testing.T) {
	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	parent := c.newSeed([]byte("seed"), "initial", 0, 0)

	novel := types.ObservationReport{Novelty: map[types.Metric]bool{types.Edge: true}}
	_, admitted := c.Consider(parent, []byte("crashy"), types.RunOutcome{Class: types.Crash, Signal: 11}, novel, types.NewMetricSet(types.Edge))
	assert.False(t, admitted)
	assert.Equal(t, 0, c.Size())
}

func TestRecordCrash_PersistsUnderCrashesDir(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	require.NoError(t, err)

	require.NoError(t, c.RecordCrash([]byte("ABCD..."), types.RunOutcome{Signal: 11}))

	entries, err := os.ReadDir(filepath.Join(dir, "crashes"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNextSeed_FavorsLowerLevelsEachPass(t *testing.T) {
	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	l0a := c.newSeed([]byte("a"), "initial", 0, 0)
	l0b := c.newSeed([]byte("b"), "initial", 0, 0)
	l1 := c.newSeed([]byte("c"), "derived", l0a.ID, 1)
	c.queue = append(c.queue, l0a, l0b, l1)

	got := []int{}
	for i := 0; i < 6; i++ {
		s := c.NextSeed()
		got = append(got, s.Level)
	}
	// First pass over 3 seeds sorted by level: 0, 0, 1 then repeats.
	assert.Equal(t, []int{0, 0, 1, 0, 0, 1}, got)
}

func TestNextSeed_EmptyQueueReturnsNil(t *testing.T) {
	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Nil(t, c.NextSeed())
}
