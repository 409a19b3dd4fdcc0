// Package game wires the ECS world, systems and telemetry into a headless
// simulation loop.
package game

import (
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/flock"
	"github.com/pthm-cable/swarm/systems"
	"github.com/pthm-cable/swarm/telemetry"
)

// Options configures a game instance.
type Options struct {
	Seed           int64
	Config         *config.Config // nil uses config.Cfg()
	LogStats       bool           // Log window stats via slog
	StatsWindowSec float64        // 0 uses config
	OutputDir      string         // Empty disables CSV output and traces
	Trace          bool           // Write a per-tick trace to OutputDir
	Realtime       bool           // Pace Run at physics.tick_rate
	FlockOnly      bool           // Disable attacks, the turret and player contact

	// Metrics and Latest are optional sinks for the debug server.
	Metrics *telemetry.Metrics
	Latest  *telemetry.Latest

	// StatsCallback is called with each flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Game holds the complete simulation state.
type Game struct {
	cfg  *config.Config
	opts Options

	world *ecs.World
	rng   *rand.Rand

	// Filters for sampling
	boidFilter   *ecs.Filter3[components.Position, components.Velocity, components.Boid]
	bulletFilter *ecs.Filter1[components.Bullet]
	indexFilter  *ecs.Filter2[components.Position, components.Boid]

	// Systems
	waves       *systems.WaveSystem
	spawner     *systems.SpawnerSystem
	flock       *systems.FlockSystem
	attackMove  *systems.AttackMoveSystem
	move        *systems.MoveSystem
	attackRange *systems.AttackRangeSystem
	turret      *systems.TurretSystem
	collisions  *systems.CollisionSystem
	contact     *systems.PlayerContactSystem
	health      *systems.HealthSystem
	lifetime    *systems.LifetimeSystem

	// Per-tick boid index for combat queries
	boidIndex *systems.EntityIndex

	// Telemetry
	perfCollector *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
	trace         *telemetry.TraceWriter
	lastFlock     flock.Stats
	events        []telemetry.Event

	// State
	tick int32
}

// NewGame creates a new game instance.
func NewGame(opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	world := ecs.NewWorld()
	rng := rand.New(rand.NewSource(opts.Seed))

	g := &Game{
		cfg:          cfg,
		opts:         opts,
		world:        world,
		rng:          rng,
		boidFilter:   ecs.NewFilter3[components.Position, components.Velocity, components.Boid](world),
		bulletFilter: ecs.NewFilter1[components.Bullet](world),
		indexFilter:  ecs.NewFilter2[components.Position, components.Boid](world),
		waves:        systems.NewWaveSystem(cfg.Spawner),
		spawner:      systems.NewSpawnerSystem(world, cfg.Spawner, cfg.Combat.BoidHealth, rng),
		attackMove:   systems.NewAttackMoveSystem(world, cfg.Combat, cfg.Flock.MoveSpeed),
		move:         systems.NewMoveSystem(world),
		attackRange:  systems.NewAttackRangeSystem(world, cfg.Combat, rng),
		turret:       systems.NewTurretSystem(world, cfg.Combat.Turret),
		collisions:   systems.NewCollisionSystem(world),
		contact:      systems.NewPlayerContactSystem(world, cfg.Combat),
		health:       systems.NewHealthSystem(world),
		lifetime:     systems.NewLifetimeSystem(world),
	}

	g.perfCollector = telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow)

	settings := cfg.FlockSettings()
	flockSys, err := systems.NewFlockSystem(world, settings, cfg.PipelineOptions(g.perfCollector))
	if err != nil {
		return nil, fmt.Errorf("creating flock system: %w", err)
	}
	g.flock = flockSys

	g.boidIndex, err = systems.NewEntityIndex(settings.EffectiveCellSize())
	if err != nil {
		g.flock.Close()
		return nil, err
	}

	statsWindow := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		statsWindow = opts.StatsWindowSec
	}
	g.collector = telemetry.NewCollector(statsWindow, cfg.Physics.DT)

	if err := g.openOutput(); err != nil {
		g.flock.Close()
		return nil, err
	}
	g.collector.KeepEvents(g.trace != nil || opts.Metrics != nil)

	slog.Info("game created",
		"seed", opts.Seed,
		"index", settings.Index,
		"neighbor_radius", settings.NeighborRadius,
		"cell_size", settings.EffectiveCellSize(),
		"max_boids", cfg.Spawner.MaxBoids,
		"flock_only", opts.FlockOnly,
	)
	return g, nil
}

// openOutput sets up CSV output and the tick trace when an output directory
// is configured.
func (g *Game) openOutput() error {
	om, err := telemetry.NewOutputManager(g.opts.OutputDir)
	if err != nil {
		return err
	}
	g.outputManager = om
	if err := om.WriteConfig(g.cfg); err != nil {
		om.Close()
		return fmt.Errorf("writing config snapshot: %w", err)
	}

	if om != nil && (g.opts.Trace || g.cfg.Telemetry.Trace) {
		tw, err := telemetry.NewTraceWriter(filepath.Join(om.Dir(), telemetry.TraceFileName))
		if err != nil {
			om.Close()
			return err
		}
		g.trace = tw
	}
	return nil
}

// Close stops the flock workers and flushes all output.
func (g *Game) Close() error {
	g.flock.Close()

	var firstErr error
	if err := g.trace.Close(); err != nil {
		firstErr = err
	}
	if err := g.outputManager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Tick returns the number of completed ticks.
func (g *Game) Tick() int32 {
	return g.tick
}

// Wave returns the current wave number.
func (g *Game) Wave() int {
	return g.waves.Wave()
}

// BoidCount returns the number of live boids.
func (g *Game) BoidCount() int {
	return g.spawner.Count()
}

// LastFlockStats returns the stats of the most recent flock step.
func (g *Game) LastFlockStats() flock.Stats {
	return g.lastFlock
}

// Perf returns the rolling performance stats.
func (g *Game) Perf() telemetry.PerfStats {
	return g.perfCollector.Stats()
}

// Config returns the game's configuration.
func (g *Game) Config() *config.Config {
	return g.cfg
}
