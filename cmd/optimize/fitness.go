package main

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/game"
	"github.com/pthm-cable/swarm/telemetry"
)

// Quality component weights.
const (
	qualityWeightPolarization = 0.40
	qualityWeightContainment  = 0.35
	qualityWeightNeighbors    = 0.25

	qualityWarmupWindows = 2 // skip first N windows while the first waves settle
)

// Score is the quality breakdown of one or more runs.
type Score struct {
	Polarization  float64
	Containment   float64 // 1 - outside fraction
	MeanNeighbors float64
	Quality       float64 // weighted total in [0, 1]
}

// FitnessEvaluator runs headless flock-only simulations and computes fitness.
type FitnessEvaluator struct {
	params      *ParamVector
	maxTicks    int32
	seeds       []int64
	baseConfig  *config.Config
	statsWindow float64

	// Neighbor count the swarm should settle at, and the tolerance around it
	targetNeighbors float64
	neighborTol     float64

	mu        sync.Mutex
	lastScore Score
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int32, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	target := float64(baseCfg.Flock.MaxNeighbors) / 2
	return &FitnessEvaluator{
		params:          params,
		maxTicks:        maxTicks,
		seeds:           seeds,
		baseConfig:      baseCfg,
		statsWindow:     1.0,
		targetNeighbors: target,
		neighborTol:     max(1, target/2),
	}
}

// LastScore returns the averaged score from the most recent evaluation.
func (fe *FitnessEvaluator) LastScore() Score {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastScore
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Seeds run in parallel; fitness is the negated mean quality.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	scores := make([]Score, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			windows, err := fe.runSimulation(x, s)
			if err != nil {
				slog.Warn("evaluation run failed", "seed", s, "error", err)
				return
			}
			scores[idx] = fe.computeScore(windows)
		}(i, seed)
	}
	wg.Wait()

	var avg Score
	for _, s := range scores {
		avg.Polarization += s.Polarization
		avg.Containment += s.Containment
		avg.MeanNeighbors += s.MeanNeighbors
		avg.Quality += s.Quality
	}
	n := float64(len(scores))
	avg.Polarization /= n
	avg.Containment /= n
	avg.MeanNeighbors /= n
	avg.Quality /= n

	fe.mu.Lock()
	fe.lastScore = avg
	fe.mu.Unlock()

	return -avg.Quality
}

// runSimulation executes a single headless run and returns its stats windows.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) ([]telemetry.WindowStats, error) {
	cfg := fe.configFor(x)

	var windows []telemetry.WindowStats
	g, err := game.NewGame(game.Options{
		Seed:           seed,
		Config:         cfg,
		FlockOnly:      true,
		StatsWindowSec: fe.statsWindow,
		StatsCallback: func(stats telemetry.WindowStats) {
			windows = append(windows, stats)
		},
	})
	if err != nil {
		return nil, err
	}
	defer g.Close()

	if err := g.Run(context.Background(), fe.maxTicks); err != nil {
		return windows, err
	}
	return windows, nil
}

// configFor copies the base config and applies x to it.
func (fe *FitnessEvaluator) configFor(x []float64) *config.Config {
	cfg := *fe.baseConfig
	fe.params.ApplyToConfig(&cfg, x)
	return &cfg
}

// computeScore averages window quality past the warmup windows.
func (fe *FitnessEvaluator) computeScore(windows []telemetry.WindowStats) Score {
	if len(windows) <= qualityWarmupWindows {
		return Score{}
	}

	var s Score
	var n float64
	for _, w := range windows[qualityWarmupWindows:] {
		if w.Boids == 0 {
			continue
		}
		s.Polarization += w.Polarization
		s.Containment += 1 - w.OutsideFrac
		s.MeanNeighbors += w.MeanNeighbors
		n++
	}
	if n == 0 {
		return Score{}
	}
	s.Polarization /= n
	s.Containment /= n
	s.MeanNeighbors /= n

	d := (s.MeanNeighbors - fe.targetNeighbors) / fe.neighborTol
	neighborScore := math.Exp(-d * d)

	s.Quality = clamp01(qualityWeightPolarization*s.Polarization +
		qualityWeightContainment*s.Containment +
		qualityWeightNeighbors*neighborScore)
	return s
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
