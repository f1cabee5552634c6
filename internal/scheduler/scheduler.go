// Package scheduler assigns energy — the number of mutant children
// produced per seed in one scheduling turn (§4.5).
package scheduler

import "github.com/fEst1ck/coverage-playground/internal/corpus"

// DefaultBaseEnergy is the energy assigned to a level-0 seed.
const DefaultBaseEnergy = 128

// Scheduler assigns a bounded integer energy to a seed, favoring lower
// levels to encourage exploration of recent mutation frontiers (§4.5). It
// deliberately has no visibility into non-feedback metrics: any
// replacement must preserve §8 property 3 (tracking-without-feedback
// independence), which this package's total absence of a coverage
// dependency makes structurally true rather than merely convention.
type Scheduler struct {
	baseEnergy int
}

// New creates a Scheduler with the given base (level-0) energy. A
// non-positive value falls back to DefaultBaseEnergy.
func New(baseEnergy int) *Scheduler {
	if baseEnergy <= 0 {
		baseEnergy = DefaultBaseEnergy
	}
	return &Scheduler{baseEnergy: baseEnergy}
}

// Energy returns the number of children to mutate from seed this turn:
// the base energy halved per level of depth, floored at 1 so that every
// seed receives at least one child per appearance (§4.5).
func (s *Scheduler) Energy(seed *corpus.Seed) int {
	e := s.baseEnergy >> uint(seed.Level)
	if e < 1 {
		e = 1
	}
	return e
}
