// Package stats periodically snapshots runtime counters and cumulative
// coverage, writing them under the output directory's stats/ (§4.6, §6).
// Stats has no feedback influence: it is observational only.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fEst1ck/coverage-playground/pkg/types"
)

// Record is one periodic snapshot, written to fuzzer_log.json and
// progress_data.csv (§6).
type Record struct {
	RunID     string                  `json:"run_id"`
	Timestamp time.Time               `json:"timestamp"`
	Elapsed   time.Duration           `json:"elapsed"`
	Execs     int64                   `json:"execs"`
	Cumulative types.CumulativeCounts `json:"cumulative"`
	Crashes   int64                   `json:"crashes"`
	QueueSize int                     `json:"queue_size"`
	Level     int                     `json:"level"`
}

// Counters is the set of live counters the engine updates as it runs; the
// Writer samples them on each tick without requiring the engine to know
// anything about how they're persisted.
type Counters struct {
	mu sync.Mutex

	execs int64
}

// IncExecs increments the total execution counter.
func (c *Counters) IncExecs() {
	c.mu.Lock()
	c.execs++
	c.mu.Unlock()
}

// Execs returns the total execution count.
func (c *Counters) Execs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execs
}

// Source supplies the values a Record needs beyond the raw exec counter.
type Source interface {
	Cumulative() types.CumulativeCounts
	CrashCount() int64
	QueueSize() int
	CurrentLevel() int
}

// Writer periodically samples a Source and appends/overwrites the §6
// stats/ files. Its only suspension points are the file writes themselves
// (§5); it never touches Corpus or Observer internal state directly.
type Writer struct {
	dir      string
	runID    string
	start    time.Time
	period   time.Duration
	counters *Counters
	source   Source
	log      *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewWriter creates a Writer rooted at outputDir/stats.
func NewWriter(outputDir, runID string, period time.Duration, counters *Counters, source Source, log *slog.Logger) (*Writer, error) {
	dir := filepath.Join(outputDir, "stats")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stats: creating stats dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Writer{
		dir:      dir,
		runID:    runID,
		start:    time.Now(),
		period:   period,
		counters: counters,
		source:   source,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run samples on a ticker until Stop is called. It is meant to run on its
// own goroutine: §5 permits a helper thread for the timekeeping concern as
// long as it never touches the Observer/Corpus update path, which it
// doesn't — it only reads via the Source interface.
func (w *Writer) Run() {
	defer close(w.done)
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			w.snapshot()
			return
		case <-ticker.C:
			w.snapshot()
		}
	}
}

// Stop signals Run to take one final snapshot and exit, then blocks until
// it has.
func (w *Writer) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Writer) snapshot() {
	rec := Record{
		RunID:      w.runID,
		Timestamp:  time.Now(),
		Elapsed:    time.Since(w.start),
		Execs:      w.counters.Execs(),
		Cumulative: w.source.Cumulative(),
		Crashes:    w.source.CrashCount(),
		QueueSize:  w.source.QueueSize(),
		Level:      w.source.CurrentLevel(),
	}

	if err := w.appendJSON(rec); err != nil {
		w.log.Warn("writing fuzzer_log.json", "err", err)
	}
	if err := w.appendCSV(rec); err != nil {
		w.log.Warn("writing progress_data.csv", "err", err)
	}
	if err := w.writeCoverageDump(rec); err != nil {
		w.log.Warn("writing coverage dump", "err", err)
	}
}

func (w *Writer) appendJSON(rec Record) error {
	path := filepath.Join(w.dir, "fuzzer_log.json")
	var records []Record
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &records)
	}
	records = append(records, rec)
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func (w *Writer) appendCSV(rec Record) error {
	path := filepath.Join(w.dir, "progress_data.csv")
	_, err := os.Stat(path)
	isNew := os.IsNotExist(err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	metrics := []types.Metric{types.Block, types.Edge, types.Path}
	if isNew {
		header := []string{"timestamp", "elapsed_seconds", "execs", "crashes", "queue_size", "level"}
		for _, m := range metrics {
			header = append(header, string(m)+"_cumulative")
		}
		if err := writer.Write(header); err != nil {
			return err
		}
	}

	row := []string{
		rec.Timestamp.Format(time.RFC3339),
		strconv.FormatFloat(rec.Elapsed.Seconds(), 'f', 3, 64),
		strconv.FormatInt(rec.Execs, 10),
		strconv.FormatInt(rec.Crashes, 10),
		strconv.Itoa(rec.QueueSize),
		strconv.Itoa(rec.Level),
	}
	for _, m := range metrics {
		row = append(row, strconv.Itoa(rec.Cumulative[m]))
	}
	return writer.Write(row)
}

func (w *Writer) writeCoverageDump(rec Record) error {
	name := fmt.Sprintf("coverage_%d.json", rec.Timestamp.Unix())
	path := filepath.Join(w.dir, name)
	out, err := json.MarshalIndent(rec.Cumulative, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
