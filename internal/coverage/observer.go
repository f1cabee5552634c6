// Package coverage decodes execution traces into block/edge/path metric
// sets and maintains the cumulative "seen" state across a fuzzing run (§4.2).
package coverage

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/fEst1ck/coverage-playground/pkg/types"
)

// entryBlock is the distinguished block ID representing a trace's entry
// point (§3, Metric Sets / Blocks).
const entryBlock uint32 = 0

// Observer transforms each Trace into per-metric observations and owns the
// cumulative seen-sets. Observe and Snapshot are serialized by a mutex, so
// the stats goroutine may call Snapshot while the fuzzing loop calls
// Observe; the loop itself drives a single Observer from one goroutine.
type Observer struct {
	mu sync.Mutex

	tracked types.MetricSet

	blocks map[uint32]struct{}
	edges  map[uint32]struct{}
	paths  map[uint64]struct{}
}

// New creates an Observer tracking exactly the given metrics.
func New(tracked types.MetricSet) *Observer {
	return &Observer{
		tracked: tracked,
		blocks:  make(map[uint32]struct{}),
		edges:   make(map[uint32]struct{}),
		paths:   make(map[uint64]struct{}),
	}
}

// blocksOf derives the set of block IDs visited by a trace: the source
// endpoint of every edge, plus the entry block (§3).
func blocksOf(trace types.Trace) map[uint32]struct{} {
	b := make(map[uint32]struct{}, len(trace.Edges)+1)
	b[entryBlock] = struct{}{}
	for _, e := range trace.Edges {
		b[sourceOf(e)] = struct{}{}
	}
	return b
}

// sourceOf recovers an edge's source block. Edge IDs are opaque 32-bit
// values named by the instrumentation; this fuzzer treats the low 16 bits
// as the source endpoint, matching the two-block encoding the wire contract
// (§6) assumes of the target's instrumentation.
func sourceOf(edge uint32) uint32 {
	return edge & 0x0000FFFF
}

// edgesOf derives the set of distinct edge IDs visited (§3). Unlike
// AFL-style hit-count bucketing, this is a plain set (§9).
func edgesOf(trace types.Trace) map[uint32]struct{} {
	e := make(map[uint32]struct{}, len(trace.Edges))
	for _, id := range trace.Edges {
		e[id] = struct{}{}
	}
	return e
}

// Fingerprint computes the path metric: a 64-bit FNV-1a hash over the
// concatenated little-endian encoding of the edge sequence (§4.2). Two
// traces share a fingerprint iff they are identical as ordered sequences;
// collisions are accepted as a research-scale tradeoff (§9).
func Fingerprint(trace types.Trace) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, e := range trace.Edges {
		binary.LittleEndian.PutUint32(buf[:], e)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Observe produces, for each tracked metric, whether this run's set
// contained at least one element absent from the cumulative set *before*
// this call (the novelty bit), then folds this run's observations into the
// cumulative state. Observe is the sole mutator of cumulative state (§4.2).
func (o *Observer) Observe(trace types.Trace) types.ObservationReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := types.ObservationReport{Novelty: make(map[types.Metric]bool, len(o.tracked))}

	if o.tracked.Contains(types.Block) {
		runBlocks := blocksOf(trace)
		report.Novelty[types.Block] = o.foldBlocks(runBlocks)
	}
	if o.tracked.Contains(types.Edge) {
		runEdges := edgesOf(trace)
		report.Novelty[types.Edge] = o.foldEdges(runEdges)
	}
	if o.tracked.Contains(types.Path) {
		fp := Fingerprint(trace)
		report.Novelty[types.Path] = o.foldPath(fp)
	}
	return report
}

func (o *Observer) foldBlocks(run map[uint32]struct{}) bool {
	novel := false
	for b := range run {
		if _, seen := o.blocks[b]; !seen {
			novel = true
			o.blocks[b] = struct{}{}
		}
	}
	return novel
}

func (o *Observer) foldEdges(run map[uint32]struct{}) bool {
	novel := false
	for e := range run {
		if _, seen := o.edges[e]; !seen {
			novel = true
			o.edges[e] = struct{}{}
		}
	}
	return novel
}

func (o *Observer) foldPath(fp uint64) bool {
	if _, seen := o.paths[fp]; seen {
		return false
	}
	o.paths[fp] = struct{}{}
	return true
}

// Snapshot returns the cardinality of each cumulative set for tracked
// metrics, for Stats (§4.2, §4.6).
func (o *Observer) Snapshot() types.CumulativeCounts {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := make(types.CumulativeCounts, len(o.tracked))
	if o.tracked.Contains(types.Block) {
		counts[types.Block] = len(o.blocks)
	}
	if o.tracked.Contains(types.Edge) {
		counts[types.Edge] = len(o.edges)
	}
	if o.tracked.Contains(types.Path) {
		counts[types.Path] = len(o.paths)
	}
	return counts
}
