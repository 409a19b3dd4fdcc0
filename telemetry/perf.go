package telemetry

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/swarm/flock"
)

// Phase names for the simulation step. The flock stages are reported by the
// flock system and pipeline.
const (
	PhaseWaves     = "waves"
	PhaseSpawn     = "spawn"
	PhaseMove      = "move"
	PhaseIndex     = "boid_index"
	PhaseCombat    = "combat"
	PhaseCleanup   = "cleanup"
	PhaseTelemetry = "telemetry"
)

// Phases lists every phase in tick order.
var Phases = []string{
	PhaseWaves, PhaseSpawn,
	flock.PhaseCollect, flock.PhaseHash, flock.PhaseIndex,
	flock.PhaseResolve, flock.PhaseForces, flock.PhaseCommit,
	PhaseMove, PhaseIndex, PhaseCombat, PhaseCleanup, PhaseTelemetry,
}

// PerfSample holds timing data for a single tick.
type PerfSample struct {
	TickDuration time.Duration
	Phases       map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window.
// It implements flock.PhaseTimer.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	tickStart     time.Time
	phaseStart    time.Time
	lastPhase     string

	// Duration of the most recent tick, for metrics export.
	lastTick   time.Duration
	lastPhases map[string]time.Duration
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of ticks to average over (e.g., 60 for 1 second at 60 ticks/s).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.currentPhases = make(map[string]time.Duration, len(Phases))
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndTick finishes timing the current tick and records the sample.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	// End final phase
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		TickDuration: now.Sub(p.tickStart),
		Phases:       p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.lastTick = sample.TickDuration
	p.lastPhases = sample.Phases
	p.lastPhase = ""
}

// LastTick returns the timing of the most recently finished tick.
func (p *PerfCollector) LastTick() PerfSample {
	return PerfSample{TickDuration: p.lastTick, Phases: p.lastPhases}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	// Tick timing
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total tick time
	PhasePct map[string]float64

	// Throughput
	TicksPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalTick time.Duration
	var minTick, maxTick time.Duration
	phaseSum := make(map[string]time.Duration)

	// Iterate over valid samples
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalTick += s.TickDuration

		if i == 0 || s.TickDuration < minTick {
			minTick = s.TickDuration
		}
		if s.TickDuration > maxTick {
			maxTick = s.TickDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgTick := totalTick / time.Duration(p.sampleCount)

	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgTick > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgTick) * 100
		}
	}

	var ticksPerSec float64
	if avgTick > 0 {
		ticksPerSec = float64(time.Second) / float64(avgTick)
	}

	return PerfStats{
		AvgTickDuration: avgTick,
		MinTickDuration: minTick,
		MaxTickDuration: maxTick,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		TicksPerSecond:  ticksPerSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"min_tick_us", s.MinTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", float64(int(pct*10))/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd    int32   `csv:"window_end"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	WavesPct     float64 `csv:"waves_pct"`
	SpawnPct     float64 `csv:"spawn_pct"`
	CollectPct   float64 `csv:"flock_collect_pct"`
	HashPct      float64 `csv:"flock_hash_pct"`
	SortPct      float64 `csv:"flock_index_pct"`
	ResolvePct   float64 `csv:"flock_resolve_pct"`
	ForcesPct    float64 `csv:"flock_forces_pct"`
	CommitPct    float64 `csv:"flock_commit_pct"`
	MovePct      float64 `csv:"move_pct"`
	BoidIndexPct float64 `csv:"boid_index_pct"`
	CombatPct    float64 `csv:"combat_pct"`
	CleanupPct   float64 `csv:"cleanup_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgTickUS:    s.AvgTickDuration.Microseconds(),
		MinTickUS:    s.MinTickDuration.Microseconds(),
		MaxTickUS:    s.MaxTickDuration.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		WavesPct:     s.PhasePct[PhaseWaves],
		SpawnPct:     s.PhasePct[PhaseSpawn],
		CollectPct:   s.PhasePct[flock.PhaseCollect],
		HashPct:      s.PhasePct[flock.PhaseHash],
		SortPct:      s.PhasePct[flock.PhaseIndex],
		ResolvePct:   s.PhasePct[flock.PhaseResolve],
		ForcesPct:    s.PhasePct[flock.PhaseForces],
		CommitPct:    s.PhasePct[flock.PhaseCommit],
		MovePct:      s.PhasePct[PhaseMove],
		BoidIndexPct: s.PhasePct[PhaseIndex],
		CombatPct:    s.PhasePct[PhaseCombat],
		CleanupPct:   s.PhasePct[PhaseCleanup],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
	}
}
