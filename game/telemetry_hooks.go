package game

import (
	"log/slog"

	"github.com/pthm-cable/swarm/flock"
	"github.com/pthm-cable/swarm/telemetry"
)

// writeFrame sends this tick's summary to the trace and metrics.
func (g *Game) writeFrame() {
	if g.trace == nil && g.opts.Metrics == nil {
		return
	}

	g.events = g.collector.DrainEvents(g.events[:0])
	boids, attacking := g.countBoids()
	frame := telemetry.Frame{
		Tick:          g.tick,
		Boids:         boids,
		Attacking:     attacking,
		Bullets:       g.countBullets(),
		Wave:          g.waves.Wave(),
		Neighbors:     g.lastFlock.Neighbors,
		Saturated:     g.lastFlock.Saturated,
		Rejected:      g.lastFlock.Rejected,
		TickMicros:    g.perfCollector.LastTick().TickDuration.Microseconds(),
		MeanNeighbors: g.lastFlock.MeanNeighbors(),
		Events:        g.events,
	}

	if err := g.trace.Write(frame); err != nil {
		slog.Error("failed to write trace frame", "tick", g.tick, "error", err)
	}
	g.opts.Metrics.ObserveFrame(frame)
}

// flushTelemetry checks if the stats window should be flushed.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	stats := g.collector.Flush(g.tick, g.sampleSnapshot())
	perfStats := g.perfCollector.Stats()

	if g.opts.StatsCallback != nil {
		g.opts.StatsCallback(stats)
	}
	if g.opts.Latest != nil {
		g.opts.Latest.Publish(stats, perfStats)
	}

	// Log stats if enabled (console output)
	if g.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	// Write to CSV if output manager is enabled
	if g.outputManager != nil {
		if err := g.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

// sampleSnapshot collects the per-boid values a stats window aggregates.
func (g *Game) sampleSnapshot() telemetry.Snapshot {
	settings := g.flock.Settings()
	snap := telemetry.Snapshot{
		Wave:      g.waves.Wave(),
		Allowance: g.waves.Allowance(),
		Bullets:   g.countBullets(),
	}

	query := g.boidFilter.Query()
	for query.Next() {
		pos, vel, boid := query.Get()
		snap.Boids++
		if boid.Attacking {
			snap.Attacking++
			continue
		}

		agent := boid.Agent(pos, vel)
		speed := agent.Speed()
		snap.Speeds = append(snap.Speeds, speed)
		if speed > 0 {
			snap.Headings = append(snap.Headings, agent.Heading())
		}
		if flock.Outside(agent.Position, settings.Boundary) {
			snap.Outside++
		}
	}
	return snap
}

func (g *Game) countBoids() (boids, attacking int) {
	query := g.boidFilter.Query()
	for query.Next() {
		_, _, boid := query.Get()
		boids++
		if boid.Attacking {
			attacking++
		}
	}
	return boids, attacking
}

func (g *Game) countBullets() int {
	n := 0
	query := g.bulletFilter.Query()
	for query.Next() {
		n++
	}
	return n
}
