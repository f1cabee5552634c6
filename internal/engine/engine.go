// Package engine wires channel, coverage, executor, corpus, scheduler, and
// mutator into the straight-line fuzzing loop of §2/§5: select a seed,
// mutate it with the seed's assigned energy, execute each mutant, observe
// its trace, and consider it for admission.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fEst1ck/coverage-playground/internal/channel"
	"github.com/fEst1ck/coverage-playground/internal/config"
	"github.com/fEst1ck/coverage-playground/internal/corpus"
	"github.com/fEst1ck/coverage-playground/internal/coverage"
	"github.com/fEst1ck/coverage-playground/internal/executor"
	"github.com/fEst1ck/coverage-playground/internal/mutator"
	"github.com/fEst1ck/coverage-playground/internal/scheduler"
	"github.com/fEst1ck/coverage-playground/internal/stats"
	"github.com/fEst1ck/coverage-playground/pkg/types"
	"github.com/google/uuid"
)

// Engine owns every component for one fuzzing run and drives the loop (§5).
// It is deliberately single-threaded on the hot path: the only other
// goroutine it starts is the Stats Writer, which only reads through the
// statsSource adapter below and never touches Corpus or Observer directly.
type Engine struct {
	cfg *config.Config
	log *slog.Logger

	ch       *channel.Channel
	observer *coverage.Observer
	exec     *executor.Executor
	cp       *corpus.Corpus
	sched    *scheduler.Scheduler
	mut      *mutator.Mutator

	counters    *stats.Counters
	statsWriter *stats.Writer

	runID string
}

// New constructs an Engine and all of its components from a validated
// Config. The coverage region is created here and released when Run
// returns; Engine has no separate Close method.
func New(cfg *config.Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	ch, err := channel.Create(channel.DefaultPath, cfg.RegionSize)
	if err != nil {
		return nil, fmt.Errorf("engine: creating coverage channel: %w", err)
	}

	observer := coverage.New(cfg.TrackedSet())

	exec := executor.New(executor.Options{
		TargetCmd: cfg.TargetCmd,
		Delivery:  cfg.Delivery.Mode,
		Timeout:   cfg.Timeout,
	}, ch, log)

	cp, err := corpus.New(cfg.OutputDir, log)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("engine: creating corpus: %w", err)
	}

	runID := uuid.NewString()
	counters := &stats.Counters{}
	source := &statsSource{observer: observer, cp: cp}
	statsWriter, err := stats.NewWriter(cfg.OutputDir, runID, cfg.StatsPeriod, counters, source, log)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("engine: creating stats writer: %w", err)
	}

	return &Engine{
		cfg:         cfg,
		log:         log,
		ch:          ch,
		observer:    observer,
		exec:        exec,
		cp:          cp,
		sched:       scheduler.New(scheduler.DefaultBaseEnergy),
		mut:         mutator.New(0),
		counters:    counters,
		statsWriter: statsWriter,
		runID:       runID,
	}, nil
}

// RunID returns the UUID stamped into this run's command.txt and stats
// records.
func (e *Engine) RunID() string { return e.runID }

// Counters exposes the live execution counter for dashboard.Model and
// dashboard.Server, which only ever read it.
func (e *Engine) Counters() *stats.Counters { return e.counters }

// StatsSource exposes the same stats.Source the Writer snapshots, so the
// TUI and web dashboard display numbers consistent with stats/fuzzer_log.json.
func (e *Engine) StatsSource() stats.Source { return &statsSource{observer: e.observer, cp: e.cp} }

// statsSource adapts Observer and Corpus to stats.Source without giving the
// Writer's goroutine any mutating access to either.
type statsSource struct {
	observer *coverage.Observer
	cp       *corpus.Corpus
}

func (s *statsSource) Cumulative() types.CumulativeCounts { return s.observer.Snapshot() }
func (s *statsSource) CrashCount() int64                  { return s.cp.CrashCount() }
func (s *statsSource) QueueSize() int                     { return s.cp.Size() }
func (s *statsSource) CurrentLevel() int                  { return s.cp.CurrentLevel() }

// Run loads the initial corpus, returning an error if no seed was admitted,
// then starts the stats writer and drives the fuzzing loop until ctx is
// canceled (external interrupt). The queue is append-only (§4.4), so once
// seeding succeeds it never runs empty.
//
// On return, the coverage channel is always closed. The stats writer flushes
// one final snapshot on every return after the loop has started; the
// seeding errors above return before the writer starts.
func (e *Engine) Run(ctx context.Context) error {
	defer e.ch.Close()

	if err := e.cp.SeedFromDirectory(ctx, e.cfg.SeedDir, e.exec, e.observer); err != nil {
		return fmt.Errorf("engine: seeding corpus: %w", err)
	}
	if e.cp.Size() == 0 {
		return fmt.Errorf("engine: no seeds admitted from %s", e.cfg.SeedDir)
	}

	go e.statsWriter.Run()
	defer e.statsWriter.Stop()

	feedback := e.cfg.FeedbackSet()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("fuzzing loop stopping", "reason", ctx.Err())
			return nil
		default:
		}

		seed := e.cp.NextSeed()
		if seed == nil {
			e.log.Warn("corpus queue is empty, nothing left to fuzz")
			return nil
		}

		energy := e.sched.Energy(seed)
		for i := 0; i < energy; i++ {
			select {
			case <-ctx.Done():
				e.log.Info("fuzzing loop stopping mid-turn", "reason", ctx.Err())
				return nil
			default:
			}

			if err := e.runOne(ctx, seed, feedback); err != nil {
				e.log.Warn("mutant execution failed", "seed_id", seed.ID, "err", err)
			}
		}
	}
}

// runOne mutates seed once, executes the mutant, observes its trace, and
// considers it for admission (§2).
func (e *Engine) runOne(ctx context.Context, seed *corpus.Seed, feedback types.MetricSet) error {
	mutant, _ := e.mut.Mutate(seed.Data)

	outcome, err := e.exec.Run(ctx, mutant)
	if err != nil {
		return err
	}
	e.counters.IncExecs()

	report := e.observer.Observe(outcome.Trace)

	if outcome.Class == types.Crash {
		if err := e.cp.RecordCrash(mutant, outcome); err != nil {
			e.log.Warn("failed to record crash", "err", err)
		}
		e.log.Info("crash found", "parent_id", seed.ID, "signal", outcome.Signal)
		return nil
	}

	if child, admitted := e.cp.Consider(seed, mutant, outcome, report, feedback); admitted {
		e.log.Info("admitted mutant", "parent_id", seed.ID, "child_id", child.ID, "level", child.Level)
	}
	return nil
}
