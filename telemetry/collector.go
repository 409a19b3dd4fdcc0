package telemetry

import (
	"math"

	"github.com/pthm-cable/swarm/flock"
)

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	counts [numEventTypes]int

	// Flock step totals for current window
	flockSteps flock.Stats

	// Events of the current tick, kept only when tracing
	keepEvents bool
	pending    []Event
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int32(math.Round(windowDurationSec / dt))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// KeepEvents makes the collector buffer per-tick events for DrainEvents.
func (c *Collector) KeepEvents(keep bool) {
	c.keepEvents = keep
	if !keep {
		c.pending = c.pending[:0]
	}
}

// Record records n events of type typ. Zero counts are ignored.
func (c *Collector) Record(tick int32, typ EventType, n int) {
	if n <= 0 || typ >= numEventTypes {
		return
	}
	c.counts[typ] += n
	if c.keepEvents {
		c.pending = append(c.pending, Event{Type: typ, Tick: tick, Count: n})
	}
}

// RecordWave records the start of a wave.
func (c *Collector) RecordWave(tick int32, wave int) {
	c.counts[EventWave]++
	if c.keepEvents {
		c.pending = append(c.pending, Event{Type: EventWave, Tick: tick, Count: 1, Value: wave})
	}
}

// RecordFlock adds one flock step to the window totals.
func (c *Collector) RecordFlock(s flock.Stats) {
	c.flockSteps.Agents += s.Agents
	c.flockSteps.Active += s.Active
	c.flockSteps.Suspended += s.Suspended
	c.flockSteps.Rejected += s.Rejected
	c.flockSteps.Neighbors += s.Neighbors
	c.flockSteps.Candidates += s.Candidates
	c.flockSteps.Saturated += s.Saturated
}

// DrainEvents appends the buffered events to dst and clears the buffer.
func (c *Collector) DrainEvents(dst []Event) []Event {
	dst = append(dst, c.pending...)
	c.pending = c.pending[:0]
	return dst
}

// Count returns the number of events of type typ in the current window.
func (c *Collector) Count(typ EventType) int {
	if typ >= numEventTypes {
		return 0
	}
	return c.counts[typ]
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// The caller provides the swarm state sampled at the window boundary.
func (c *Collector) Flush(currentTick int32, snap Snapshot) WindowStats {
	speedMean, speedStd, speedP10, speedP50, speedP90 := ComputeSpeedStats(snap.Speeds)

	var outsideFrac float64
	if snap.Boids > 0 {
		outsideFrac = float64(snap.Outside) / float64(snap.Boids)
	}

	var hitRate float64
	if shots := c.counts[EventShot]; shots > 0 {
		hitRate = float64(c.counts[EventBulletHit]) / float64(shots)
	}

	fs := c.flockSteps
	var candidatesPerAgent, saturatedFrac float64
	if fs.Active > 0 {
		candidatesPerAgent = float64(fs.Candidates) / float64(fs.Active)
		saturatedFrac = float64(fs.Saturated) / float64(fs.Active)
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Boids:     snap.Boids,
		Attacking: snap.Attacking,
		Bullets:   snap.Bullets,
		Wave:      snap.Wave,
		Allowance: snap.Allowance,

		Spawned:       c.counts[EventSpawn],
		AttacksStart:  c.counts[EventAttackStart],
		AttacksEnd:    c.counts[EventAttackEnd],
		Shots:         c.counts[EventShot],
		BulletHits:    c.counts[EventBulletHit],
		HitRate:       hitRate,
		Kills:         c.counts[EventKill],
		PlayerHits:    c.counts[EventPlayerHit],
		Expired:       c.counts[EventExpired],
		FlockRejected: fs.Rejected,

		SpeedMean: speedMean,
		SpeedStd:  speedStd,
		SpeedP10:  speedP10,
		SpeedP50:  speedP50,
		SpeedP90:  speedP90,

		MeanNeighbors:      fs.MeanNeighbors(),
		CandidatesPerAgent: candidatesPerAgent,
		SaturatedFrac:      saturatedFrac,
		Polarization:       Polarization(snap.Headings),
		OutsideFrac:        outsideFrac,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.counts = [numEventTypes]int{}
	c.flockSteps = flock.Stats{}

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
