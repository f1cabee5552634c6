// Package corpus maintains the queue of interesting inputs, their
// metadata, and the feedback-driven admission decision (§4.4).
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fEst1ck/coverage-playground/pkg/types"
)

// Seed is an entry in the queue (§3).
type Seed struct {
	ID        int64     `json:"id"`
	Data      []byte    `json:"-"`
	Hash      string    `json:"hash"`
	Source    string    `json:"source"` // "initial" or "derived"
	ParentID  int64     `json:"parent_id,omitempty"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`

	TimesSelected  int64 `json:"times_selected"`
	ChildNovelties int64 `json:"child_novelties"`
}

// Corpus owns all seeds; nothing else retains references across a
// mutation cycle (§3 Ownership).
type Corpus struct {
	mu sync.Mutex

	dir   string
	queue []*Seed // append-only, oldest first within a level (§4.4)
	nextID int64

	crashCount int64
	log        *slog.Logger

	// pos is the round-robin cursor into the level-then-age ordered queue
	// (§4.4): each full pass favors lower levels, oldest-first within a
	// level.
	pos int
}

// Executor is the minimal surface Corpus needs to run a seed once while
// loading the initial directory (§4.4 seed_from_directory).
type Executor interface {
	Run(ctx context.Context, input []byte) (types.RunOutcome, error)
}

// Observer is the minimal surface Corpus needs to populate cumulative
// coverage while loading the initial directory.
type Observer interface {
	Observe(trace types.Trace) types.ObservationReport
}

// New creates a Corpus rooted at dir, creating queue/ and crashes/.
func New(dir string, log *slog.Logger) (*Corpus, error) {
	if log == nil {
		log = slog.Default()
	}
	for _, sub := range []string{"queue", "crashes"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("corpus: creating %s: %w", sub, err)
		}
	}
	return &Corpus{dir: dir, log: log}, nil
}

// SeedFromDirectory loads each regular file in dir as an initial seed
// (level 0), runs it once to populate cumulative coverage, and
// unconditionally admits it (§4.4). Non-regular entries are skipped with a
// warning, per §9's recommendation.
func (c *Corpus) SeedFromDirectory(ctx context.Context, dir string, exec Executor, obs Observer) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("corpus: reading seed dir: %w", err)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			c.log.Warn("skipping non-regular seed directory entry", "name", e.Name())
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			c.log.Warn("failed to read seed file", "path", path, "err", err)
			continue
		}

		outcome, err := exec.Run(ctx, data)
		if err != nil {
			c.log.Warn("failed to execute initial seed", "path", path, "err", err)
			continue
		}
		obs.Observe(outcome.Trace)

		seed := c.newSeed(data, "initial", 0, 0)
		if err := c.persist(seed); err != nil {
			return err
		}
		c.mu.Lock()
		c.queue = append(c.queue, seed)
		c.mu.Unlock()
	}
	return nil
}

func (c *Corpus) newSeed(data []byte, source string, parentID int64, level int) *Seed {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	return &Seed{
		ID:        id,
		Data:      data,
		Hash:      hashBytes(data),
		Source:    source,
		ParentID:  parentID,
		Level:     level,
		CreatedAt: time.Now(),
	}
}

// Consider admits a mutant iff outcome is not Crash and at least one
// feedback metric reports novelty (§4.4). Admitted mutants get level =
// parent.Level + 1 and are persisted under queue/.
func (c *Corpus) Consider(parent *Seed, mutantBytes []byte, outcome types.RunOutcome, report types.ObservationReport, feedback types.MetricSet) (*Seed, bool) {
	if outcome.Class == types.Crash {
		return nil, false
	}
	if !report.AnyNovel(feedback) {
		return nil, false
	}

	seed := c.newSeed(mutantBytes, "derived", parent.ID, parent.Level+1)
	if err := c.persist(seed); err != nil {
		c.log.Warn("failed to persist admitted seed", "err", err)
		return nil, false
	}

	c.mu.Lock()
	c.queue = append(c.queue, seed)
	parent.ChildNovelties++
	c.mu.Unlock()
	return seed, true
}

// RecordCrash persists mutantBytes to crashes/; it is never admitted to the
// queue even though it may also be novel (§4.4).
func (c *Corpus) RecordCrash(mutantBytes []byte, outcome types.RunOutcome) error {
	c.mu.Lock()
	c.crashCount++
	id := c.crashCount
	c.mu.Unlock()

	name := fmt.Sprintf("id_%06d_sig_%02d", id, outcome.Signal)
	path := filepath.Join(c.dir, "crashes", name)
	return os.WriteFile(path, mutantBytes, 0o644)
}

// NextSeed returns the next seed to fuzz: round-robin over the queue,
// favoring lower levels each pass, oldest-first within a level (§4.4). The
// queue is re-sorted by (level, id) on every call, which is cheap at the
// corpus sizes this research fuzzer targets (throughput is a non-goal, §1).
func (c *Corpus) NextSeed() *Seed {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}

	ordered := append([]*Seed{}, c.queue...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Level != ordered[j].Level {
			return ordered[i].Level < ordered[j].Level
		}
		return ordered[i].ID < ordered[j].ID
	})

	idx := c.pos % len(ordered)
	c.pos++
	seed := ordered[idx]
	seed.TimesSelected++
	return seed
}

// Size returns the number of admitted seeds, for Stats.
func (c *Corpus) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// CrashCount returns the number of recorded crashes, for Stats.
func (c *Corpus) CrashCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crashCount
}

// CurrentLevel returns the highest level present in the queue, for Stats.
func (c *Corpus) CurrentLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := 0
	for _, s := range c.queue {
		if s.Level > max {
			max = s.Level
		}
	}
	return max
}

func (c *Corpus) persist(s *Seed) error {
	dataPath := filepath.Join(c.dir, "queue", fmt.Sprintf("id_%06d", s.ID))
	if err := os.WriteFile(dataPath, s.Data, 0o644); err != nil {
		return fmt.Errorf("corpus: writing queue entry: %w", err)
	}
	meta, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("corpus: marshaling seed metadata: %w", err)
	}
	return os.WriteFile(dataPath+".json", meta, 0o644)
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

