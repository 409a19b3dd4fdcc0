package systems

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/flock"
)

// FlockSystem runs the flocking pipeline over every boid in the world.
// Attacking boids are passed as suspended agents: they keep their state and
// are nobody's neighbor.
type FlockSystem struct {
	filter   *ecs.Filter3[components.Position, components.Velocity, components.Boid]
	posMap   *ecs.Map1[components.Position]
	velMap   *ecs.Map1[components.Velocity]
	pipeline *flock.Pipeline
	timer    flock.PhaseTimer

	entities []ecs.Entity
	agents   []flock.Agent
}

// NewFlockSystem creates a flock system. The system owns the pipeline's
// workers until Close.
func NewFlockSystem(w *ecs.World, settings flock.Settings, opts flock.Options) (*FlockSystem, error) {
	pipeline, err := flock.NewPipeline(settings, opts)
	if err != nil {
		return nil, fmt.Errorf("creating flock pipeline: %w", err)
	}
	return &FlockSystem{
		filter:   ecs.NewFilter3[components.Position, components.Velocity, components.Boid](w),
		posMap:   ecs.NewMap1[components.Position](w),
		velMap:   ecs.NewMap1[components.Velocity](w),
		pipeline: pipeline,
		timer:    opts.Timer,
	}, nil
}

// Update advances all boids by dt.
func (s *FlockSystem) Update(dt float64) (flock.Stats, error) {
	s.startPhase(flock.PhaseCollect)

	// Phase A: snapshot (single-threaded)
	s.entities = s.entities[:0]
	s.agents = s.agents[:0]
	query := s.filter.Query()
	for query.Next() {
		pos, vel, boid := query.Get()
		s.entities = append(s.entities, query.Entity())
		s.agents = append(s.agents, boid.Agent(pos, vel))
	}

	// Phase B: pipeline stages
	stats, err := s.pipeline.Step(s.agents, s.agents, dt)
	if err != nil {
		return stats, err
	}

	// Phase C: commit (single-threaded)
	s.startPhase(flock.PhaseCommit)
	for i, e := range s.entities {
		a := &s.agents[i]
		if a.Suspended {
			continue
		}
		pos := s.posMap.Get(e)
		vel := s.velMap.Get(e)
		if pos == nil || vel == nil {
			continue
		}
		pos.Set(a.Position)
		vel.Set(a.Velocity)
	}

	return stats, nil
}

// Settings returns the pipeline settings.
func (s *FlockSystem) Settings() flock.Settings {
	return s.pipeline.Settings()
}

// Close stops the pipeline workers.
func (s *FlockSystem) Close() {
	s.pipeline.Close()
}

func (s *FlockSystem) startPhase(name string) {
	if s.timer != nil {
		s.timer.StartPhase(name)
	}
}
