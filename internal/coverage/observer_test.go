package coverage

import (
	"testing"

	"github.com/fEst1ck/coverage-playground/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve_NoveltyOnFirstRun(t *testing.T) {
	o := New(types.NewMetricSet(types.Block, types.Edge, types.Path))

	report := o.Observe(types.Trace{Edges: []uint32{1, 2, 3}})

	assert.True(t, report.Novelty[types.Block])
	assert.True(t, report.Novelty[types.Edge])
	assert.True(t, report.Novelty[types.Path])
}

func TestObserve_RepeatedTraceIsNotNovel(t *testing.T) {
	o := New(types.NewMetricSet(types.Block, types.Edge, types.Path))
	trace := types.Trace{Edges: []uint32{1, 2, 3}}

	o.Observe(trace)
	report := o.Observe(trace)

	assert.False(t, report.Novelty[types.Block])
	assert.False(t, report.Novelty[types.Edge])
	assert.False(t, report.Novelty[types.Path])
}

// TestObserve_CumulativeMonotonicity is property (1) of §8: cumulative set
// size never decreases across executions.
func TestObserve_CumulativeMonotonicity(t *testing.T) {
	o := New(types.NewMetricSet(types.Block, types.Edge, types.Path))
	traces := []types.Trace{
		{Edges: []uint32{1, 2}},
		{Edges: []uint32{1, 2}}, // repeat
		{Edges: []uint32{3, 4, 5}},
		{Edges: []uint32{}},
	}

	var prev types.CumulativeCounts
	for _, tr := range traces {
		o.Observe(tr)
		cur := o.Snapshot()
		if prev != nil {
			for _, m := range []types.Metric{types.Block, types.Edge, types.Path} {
				assert.GreaterOrEqual(t, cur[m], prev[m], "metric %s regressed", m)
			}
		}
		prev = cur
	}
}

// TestObserve_TrackingWithoutFeedback is property (3) of §8: the Observer
// itself doesn't know about feedback_metrics at all — that's the Corpus's
// concern — so enabling more tracked metrics never changes any individual
// metric's novelty sequence.
func TestObserve_TrackingWithoutFeedback(t *testing.T) {
	edgeOnly := New(types.NewMetricSet(types.Edge))
	all := New(types.NewMetricSet(types.Block, types.Edge, types.Path))

	traces := []types.Trace{
		{Edges: []uint32{10}},
		{Edges: []uint32{10, 20}},
		{Edges: []uint32{10}},
	}

	for _, tr := range traces {
		r1 := edgeOnly.Observe(tr)
		r2 := all.Observe(tr)
		assert.Equal(t, r1.Novelty[types.Edge], r2.Novelty[types.Edge])
	}
}

func TestFingerprint_DeterministicAndDistinguishing(t *testing.T) {
	a := types.Trace{Edges: []uint32{1, 2, 3}}
	b := types.Trace{Edges: []uint32{1, 2, 3}}
	c := types.Trace{Edges: []uint32{3, 2, 1}}

	require.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestBlocksOf_IncludesEntryBlock(t *testing.T) {
	b := blocksOf(types.Trace{})
	_, ok := b[entryBlock]
	assert.True(t, ok)
}
