package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Snapshot is the swarm state sampled at a window boundary.
type Snapshot struct {
	Boids     int
	Attacking int
	Bullets   int
	Wave      int
	Allowance int
	Outside   int // boids outside the flock boundary

	Speeds   []float64
	Headings []r3.Vec // unit headings of moving boids
}

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Boids     int `csv:"boids"`
	Attacking int `csv:"attacking"`
	Bullets   int `csv:"bullets"`
	Wave      int `csv:"wave"`
	Allowance int `csv:"allowance"`

	// Events during window
	Spawned       int     `csv:"spawned"`
	AttacksStart  int     `csv:"attacks_started"`
	AttacksEnd    int     `csv:"attacks_ended"`
	Shots         int     `csv:"shots"`
	BulletHits    int     `csv:"bullet_hits"`
	HitRate       float64 `csv:"hit_rate"`
	Kills         int     `csv:"kills"`
	PlayerHits    int     `csv:"player_hits"`
	Expired       int     `csv:"expired"`
	FlockRejected int     `csv:"flock_rejected"`

	// Speed distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Flock structure
	MeanNeighbors      float64 `csv:"mean_neighbors"`       // averaged over the window's steps
	CandidatesPerAgent float64 `csv:"candidates_per_agent"` // distance tests per active agent
	SaturatedFrac      float64 `csv:"saturated_frac"`       // active agents that hit the neighbor cap
	Polarization       float64 `csv:"polarization"`         // |mean unit heading| at window end
	OutsideFrac        float64 `csv:"outside_frac"`         // boids outside the boundary at window end
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeSpeedStats calculates mean, sample std, and percentiles of speed
// values.
func ComputeSpeedStats(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	if n == 1 {
		return values[0], 0, values[0], values[0], values[0]
	}
	mean, std = stat.MeanStdDev(values, nil)

	// Sort for percentiles
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// Polarization returns the length of the mean of unit headings: 1 when all
// boids fly the same way, near 0 when headings are uncorrelated.
func Polarization(headings []r3.Vec) float64 {
	if len(headings) == 0 {
		return 0
	}
	var sum r3.Vec
	for _, h := range headings {
		sum = r3.Add(sum, h)
	}
	return r3.Norm(sum) / float64(len(headings))
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("boids", s.Boids),
		slog.Int("attacking", s.Attacking),
		slog.Int("bullets", s.Bullets),
		slog.Int("wave", s.Wave),
		slog.Int("allowance", s.Allowance),
		slog.Int("spawned", s.Spawned),
		slog.Int("attacks_started", s.AttacksStart),
		slog.Int("attacks_ended", s.AttacksEnd),
		slog.Int("shots", s.Shots),
		slog.Int("bullet_hits", s.BulletHits),
		slog.Float64("hit_rate", s.HitRate),
		slog.Int("kills", s.Kills),
		slog.Int("player_hits", s.PlayerHits),
		slog.Int("expired", s.Expired),
		slog.Int("flock_rejected", s.FlockRejected),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("mean_neighbors", s.MeanNeighbors),
		slog.Float64("candidates_per_agent", s.CandidatesPerAgent),
		slog.Float64("saturated_frac", s.SaturatedFrac),
		slog.Float64("polarization", s.Polarization),
		slog.Float64("outside_frac", s.OutsideFrac),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"boids", s.Boids,
		"attacking", s.Attacking,
		"bullets", s.Bullets,
		"wave", s.Wave,
		"spawned", s.Spawned,
		"kills", s.Kills,
		"player_hits", s.PlayerHits,
		"hit_rate", s.HitRate,
		"speed_mean", s.SpeedMean,
		"speed_p90", s.SpeedP90,
		"mean_neighbors", s.MeanNeighbors,
		"saturated_frac", s.SaturatedFrac,
		"polarization", s.Polarization,
		"outside_frac", s.OutsideFrac,
	)
}
