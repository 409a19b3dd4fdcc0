package game

import (
	"fmt"

	"github.com/pthm-cable/swarm/systems"
	"github.com/pthm-cable/swarm/telemetry"
)

// Step runs one simulation tick.
func (g *Game) Step() error {
	dt := g.cfg.Physics.DT
	tick := g.tick + 1
	g.perfCollector.StartTick()

	g.perfCollector.StartPhase(telemetry.PhaseWaves)
	if g.waves.Update(dt) {
		g.collector.RecordWave(tick, g.waves.Wave())
	}

	g.perfCollector.StartPhase(telemetry.PhaseSpawn)
	spawned := g.spawner.Update(g.spawner.Count(), g.waves.Allowance(), g.waves.Wave())
	g.collector.Record(tick, telemetry.EventSpawn, spawned)

	// Flock phases are reported by the flock system and its pipeline
	stats, err := g.flock.Update(dt)
	if err != nil {
		g.perfCollector.EndTick()
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	g.lastFlock = stats
	g.collector.RecordFlock(stats)

	g.perfCollector.StartPhase(telemetry.PhaseMove)
	if !g.opts.FlockOnly {
		g.collector.Record(tick, telemetry.EventAttackEnd, g.attackMove.Update())
	}
	g.move.Update(dt)

	g.perfCollector.StartPhase(telemetry.PhaseIndex)
	systems.IndexBoids(g.boidIndex, g.indexFilter)

	g.perfCollector.StartPhase(telemetry.PhaseCombat)
	if !g.opts.FlockOnly {
		g.collector.Record(tick, telemetry.EventAttackStart, g.attackRange.Update(g.boidIndex))
		if g.turret.Update(g.boidIndex, dt) {
			g.collector.Record(tick, telemetry.EventShot, 1)
		}
	}
	g.collector.Record(tick, telemetry.EventBulletHit, g.collisions.Update(g.boidIndex))
	if !g.opts.FlockOnly {
		g.collector.Record(tick, telemetry.EventPlayerHit, g.contact.Update(g.boidIndex))
	}

	g.perfCollector.StartPhase(telemetry.PhaseCleanup)
	g.collector.Record(tick, telemetry.EventKill, g.health.Update())
	g.collector.Record(tick, telemetry.EventExpired, g.lifetime.Update(dt))

	g.tick = tick

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.writeFrame()
	g.flushTelemetry()

	g.perfCollector.EndTick()
	g.opts.Metrics.ObserveTick(g.perfCollector.LastTick())
	return nil
}
