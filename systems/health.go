package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/swarm/components"
)

// HealthSystem removes boids whose health is depleted.
type HealthSystem struct {
	world  *ecs.World
	filter *ecs.Filter2[components.Boid, components.Health]
	dead   []ecs.Entity
}

// NewHealthSystem creates a health system.
func NewHealthSystem(w *ecs.World) *HealthSystem {
	return &HealthSystem{
		world:  w,
		filter: ecs.NewFilter2[components.Boid, components.Health](w),
	}
}

// Update removes dead boids and returns how many were killed.
func (s *HealthSystem) Update() int {
	// First pass: collect dead entities (must complete before modifying)
	s.dead = s.dead[:0]
	query := s.filter.Query()
	for query.Next() {
		_, health := query.Get()
		if health.Value <= 0 {
			s.dead = append(s.dead, query.Entity())
		}
	}

	// Second pass: remove entities (query iteration complete)
	for _, e := range s.dead {
		s.world.RemoveEntity(e)
	}
	return len(s.dead)
}

// LifetimeSystem counts down Lifetime components and removes expired
// entities.
type LifetimeSystem struct {
	world   *ecs.World
	filter  *ecs.Filter1[components.Lifetime]
	expired []ecs.Entity
}

// NewLifetimeSystem creates a lifetime system.
func NewLifetimeSystem(w *ecs.World) *LifetimeSystem {
	return &LifetimeSystem{
		world:  w,
		filter: ecs.NewFilter1[components.Lifetime](w),
	}
}

// Update advances lifetimes by dt and returns how many entities expired.
func (s *LifetimeSystem) Update(dt float64) int {
	s.expired = s.expired[:0]
	query := s.filter.Query()
	for query.Next() {
		life := query.Get()
		life.Remaining -= dt
		if life.Remaining <= 0 {
			s.expired = append(s.expired, query.Entity())
		}
	}

	for _, e := range s.expired {
		s.world.RemoveEntity(e)
	}
	return len(s.expired)
}
