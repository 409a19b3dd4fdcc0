package systems

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/flock"
)

// waveBase is the boid allowance unit; wave n allows waveBase * (2 << n).
const waveBase = 16

// WaveAllowance returns the boid allowance of the given wave, capped at
// maxBoids.
func WaveAllowance(wave, maxBoids int) int {
	if wave < 0 {
		wave = 0
	}
	// 2 << 26 already exceeds any sensible cap; avoid shifting further.
	if wave > 26 {
		return maxBoids
	}
	return min(maxBoids, waveBase*(2<<wave))
}

// WaveSystem advances waves on a fixed interval. Each wave raises the number
// of boids the spawner may keep alive.
type WaveSystem struct {
	interval  float64
	maxWaves  int
	maxBoids  int
	wave      int
	sinceLast float64
	allowance int
}

// NewWaveSystem creates a wave system starting at wave 0.
func NewWaveSystem(cfg config.SpawnerConfig) *WaveSystem {
	return &WaveSystem{
		interval:  cfg.WaveInterval,
		maxWaves:  cfg.MaxWaves,
		maxBoids:  cfg.MaxBoids,
		allowance: WaveAllowance(0, cfg.MaxBoids),
	}
}

// Update advances the wave timer. It returns true when a new wave started.
func (s *WaveSystem) Update(dt float64) bool {
	s.sinceLast += dt
	if s.sinceLast < s.interval || s.wave >= s.maxWaves {
		return false
	}
	s.sinceLast = 0
	s.wave++
	s.allowance = WaveAllowance(s.wave, s.maxBoids)
	slog.Info("wave started", "wave", s.wave, "allowance", s.allowance)
	return true
}

// Wave returns the current wave number.
func (s *WaveSystem) Wave() int {
	return s.wave
}

// Allowance returns how many boids may be alive in the current wave.
func (s *WaveSystem) Allowance() int {
	return s.allowance
}

// SpawnerSystem creates boids around a spawn point until the live count
// reaches the current wave allowance.
type SpawnerSystem struct {
	cfg    config.SpawnerConfig
	health float64
	rng    *rand.Rand

	mapper     *ecs.Map4[components.Position, components.Velocity, components.Boid, components.Health]
	mortal     *ecs.Map5[components.Position, components.Velocity, components.Boid, components.Health, components.Lifetime]
	boidFilter *ecs.Filter1[components.Boid]
}

// NewSpawnerSystem creates a spawner.
func NewSpawnerSystem(w *ecs.World, cfg config.SpawnerConfig, health float64, rng *rand.Rand) *SpawnerSystem {
	return &SpawnerSystem{
		cfg:        cfg,
		health:     health,
		rng:        rng,
		mapper:     ecs.NewMap4[components.Position, components.Velocity, components.Boid, components.Health](w),
		mortal:     ecs.NewMap5[components.Position, components.Velocity, components.Boid, components.Health, components.Lifetime](w),
		boidFilter: ecs.NewFilter1[components.Boid](w),
	}
}

// Count returns the number of live boids.
func (s *SpawnerSystem) Count() int {
	n := 0
	query := s.boidFilter.Query()
	for query.Next() {
		n++
	}
	return n
}

// Update spawns up to max_per_tick boids toward allowance. It returns the
// number spawned.
func (s *SpawnerSystem) Update(alive, allowance, wave int) int {
	n := min(allowance-alive, s.cfg.MaxPerTick)
	for i := 0; i < n; i++ {
		s.Spawn(wave)
	}
	return max(n, 0)
}

// Spawn creates a single boid at a random offset from the spawn point with
// a random heading and speed.
func (s *SpawnerSystem) Spawn(wave int) ecs.Entity {
	center := s.cfg.SpawnPoint.Vec()
	offset := r3.Vec{
		X: (s.rng.Float64()*2 - 1) * s.cfg.Spread,
		Y: (s.rng.Float64()*2 - 1) * s.cfg.Spread,
		Z: (s.rng.Float64()*2 - 1) * s.cfg.Spread,
	}
	speed := s.cfg.MinSpeed + s.rng.Float64()*(s.cfg.MaxSpeed-s.cfg.MinSpeed)

	var pos components.Position
	var vel components.Velocity
	pos.Set(r3.Add(center, offset))
	vel.Set(r3.Scale(speed, RandomDirection(s.rng)))
	boid := components.Boid{Weights: flock.DefaultWeights, Wave: int32(wave)}
	health := components.Health{Value: s.health}

	if s.cfg.BoidLifetime > 0 {
		life := components.Lifetime{Remaining: s.cfg.BoidLifetime}
		return s.mortal.NewEntity(&pos, &vel, &boid, &health, &life)
	}
	return s.mapper.NewEntity(&pos, &vel, &boid, &health)
}

// RandomDirection returns a uniformly distributed unit vector.
func RandomDirection(rng *rand.Rand) r3.Vec {
	z := rng.Float64()*2 - 1
	theta := rng.Float64() * 2 * math.Pi
	r := math.Sqrt(1 - z*z)
	return r3.Vec{X: r * math.Cos(theta), Y: r * math.Sin(theta), Z: z}
}
