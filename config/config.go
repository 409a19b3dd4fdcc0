// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/swarm/flock"
	"github.com/pthm-cable/swarm/spatial"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Physics   PhysicsConfig   `yaml:"physics"`
	Flock     FlockConfig     `yaml:"flock"`
	Boundary  BoundaryConfig  `yaml:"boundary"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Spawner   SpawnerConfig   `yaml:"spawner"`
	Combat    CombatConfig    `yaml:"combat"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Vec3 is a YAML-friendly 3D vector.
type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Vec converts to an r3 vector.
func (v Vec3) Vec() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

// PhysicsConfig holds simulation timing parameters.
type PhysicsConfig struct {
	DT       float64 `yaml:"dt"`        // Seconds per tick
	TickRate float64 `yaml:"tick_rate"` // Ticks per second when running in real time
}

// FlockConfig holds neighbor query and steering parameters.
type FlockConfig struct {
	NeighborRadius   float64 `yaml:"neighbor_radius"`
	MaxNeighbors     int     `yaml:"max_neighbors"`
	CellSize         float64 `yaml:"cell_size"` // 0 = use neighbor_radius
	Index            string  `yaml:"index"`     // "sorted" or "cellmap"
	MoveSpeed        float64 `yaml:"move_speed"`
	AlignmentWeight  float64 `yaml:"alignment_weight"`
	CohesionWeight   float64 `yaml:"cohesion_weight"`
	SeparationWeight float64 `yaml:"separation_weight"`
}

// BoundaryConfig holds the containment region.
type BoundaryConfig struct {
	Shape  string  `yaml:"shape"` // "sphere" or "box"
	Center Vec3    `yaml:"center"`
	Size   float64 `yaml:"size"`   // Radius for sphere, half-extent for box
	Weight float64 `yaml:"weight"` // 0 disables the boundary
}

// ParallelConfig holds worker pool parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // Agent count below which stages run inline
}

// SpawnerConfig holds wave and spawn parameters.
type SpawnerConfig struct {
	WaveInterval float64 `yaml:"wave_interval"` // Seconds between waves
	MaxWaves     int     `yaml:"max_waves"`
	MaxBoids     int     `yaml:"max_boids"`
	MaxPerTick   int     `yaml:"max_per_tick"`
	SpawnPoint   Vec3    `yaml:"spawn_point"`
	Spread       float64 `yaml:"spread"` // Half-extent of the spawn cube
	MinSpeed     float64 `yaml:"min_speed"`
	MaxSpeed     float64 `yaml:"max_speed"`
	BoidLifetime float64 `yaml:"boid_lifetime"` // Seconds; 0 = boids live until killed
}

// CombatConfig holds player, attack and turret parameters.
type CombatConfig struct {
	PlayerPosition  Vec3    `yaml:"player_position"`
	PlayerHitRadius float64 `yaml:"player_hit_radius"`
	GroundHeight    float64 `yaml:"ground_height"`
	AttackRange     float64 `yaml:"attack_range"`
	AttackChance    float64 `yaml:"attack_chance"`  // Per-tick probability once in range
	ResetDistance   float64 `yaml:"reset_distance"` // Attack ends beyond this distance near the ground
	AttackSpeedMul  float64 `yaml:"attack_speed_mul"`
	BoidHealth      float64 `yaml:"boid_health"`

	Turret TurretConfig `yaml:"turret"`
}

// TurretConfig holds automatic turret parameters.
type TurretConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Position       Vec3    `yaml:"position"`
	FireInterval   float64 `yaml:"fire_interval"` // Seconds between shots
	Range          float64 `yaml:"range"`
	BulletSpeed    float64 `yaml:"bullet_speed"`
	BulletDamage   float64 `yaml:"bullet_damage"`
	BulletLifetime float64 `yaml:"bullet_lifetime"`
	BulletRadius   float64 `yaml:"bullet_radius"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`          // Seconds per stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"` // Ticks in the rolling perf window
	Trace               bool    `yaml:"trace"`                 // Write per-tick trace when an output dir is set
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	TicksPerWindow int32         // StatsWindow / DT, at least 1
	TickInterval   time.Duration // 1 / TickRate, 0 when unpaced
	BoundarySize2  float64       // Boundary.Size squared
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. The result is validated.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Defaults returns the embedded default configuration.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.TicksPerWindow = 1
	if c.Physics.DT > 0 {
		c.Derived.TicksPerWindow = max(1, int32(math.Round(c.Telemetry.StatsWindow/c.Physics.DT)))
	}

	c.Derived.TickInterval = 0
	if c.Physics.TickRate > 0 {
		c.Derived.TickInterval = time.Duration(float64(time.Second) / c.Physics.TickRate)
	}

	c.Derived.BoundarySize2 = c.Boundary.Size * c.Boundary.Size
}

// FlockSettings builds the immutable settings for the flocking pipeline.
func (c *Config) FlockSettings() flock.Settings {
	return flock.Settings{
		NeighborRadius:   c.Flock.NeighborRadius,
		MaxNeighbors:     c.Flock.MaxNeighbors,
		CellSize:         c.Flock.CellSize,
		Index:            spatial.IndexKind(c.Flock.Index),
		MoveSpeed:        c.Flock.MoveSpeed,
		AlignmentWeight:  c.Flock.AlignmentWeight,
		CohesionWeight:   c.Flock.CohesionWeight,
		SeparationWeight: c.Flock.SeparationWeight,
		Boundary: flock.Boundary{
			Shape:  flock.BoundaryShape(c.Boundary.Shape),
			Center: c.Boundary.Center.Vec(),
			Size:   c.Boundary.Size,
			Weight: c.Boundary.Weight,
		},
	}
}

// PipelineOptions builds worker pool options for the flocking pipeline.
func (c *Config) PipelineOptions(timer flock.PhaseTimer) flock.Options {
	return flock.Options{
		Workers:           c.Parallel.Workers,
		ParallelThreshold: c.Parallel.Threshold,
		Timer:             timer,
	}
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if err := c.FlockSettings().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	p, s, cb, t := c.Physics, c.Spawner, c.Combat, c.Combat.Turret
	checks := []struct {
		ok  bool
		msg string
	}{
		{p.DT > 0 && !math.IsInf(p.DT, 0), "physics.dt must be positive"},
		{p.TickRate >= 0, "physics.tick_rate must be non-negative"},
		{c.Parallel.Workers >= 0, "parallel.workers must be non-negative"},
		{c.Parallel.Threshold >= 0, "parallel.threshold must be non-negative"},
		{s.WaveInterval > 0, "spawner.wave_interval must be positive"},
		{s.MaxWaves >= 1, "spawner.max_waves must be at least 1"},
		{s.MaxBoids >= 0, "spawner.max_boids must be non-negative"},
		{s.MaxPerTick >= 1, "spawner.max_per_tick must be at least 1"},
		{s.Spread >= 0, "spawner.spread must be non-negative"},
		{s.MinSpeed >= 0 && s.MaxSpeed >= s.MinSpeed, "spawner speeds must satisfy 0 <= min_speed <= max_speed"},
		{s.BoidLifetime >= 0, "spawner.boid_lifetime must be non-negative"},
		{cb.PlayerHitRadius >= 0, "combat.player_hit_radius must be non-negative"},
		{cb.AttackRange >= 0, "combat.attack_range must be non-negative"},
		{cb.AttackChance >= 0 && cb.AttackChance <= 1, "combat.attack_chance must be in [0, 1]"},
		{cb.ResetDistance >= 0, "combat.reset_distance must be non-negative"},
		{cb.AttackSpeedMul > 0, "combat.attack_speed_mul must be positive"},
		{cb.BoidHealth > 0, "combat.boid_health must be positive"},
		{!t.Enabled || t.FireInterval > 0, "combat.turret.fire_interval must be positive"},
		{!t.Enabled || t.BulletSpeed > 0, "combat.turret.bullet_speed must be positive"},
		{!t.Enabled || t.BulletLifetime > 0, "combat.turret.bullet_lifetime must be positive"},
		{!t.Enabled || t.BulletRadius > 0, "combat.turret.bullet_radius must be positive"},
		{c.Telemetry.StatsWindow > 0, "telemetry.stats_window must be positive"},
		{c.Telemetry.PerfCollectorWindow >= 1, "telemetry.perf_collector_window must be at least 1"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, chk.msg)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
