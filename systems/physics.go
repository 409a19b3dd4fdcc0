package systems

import (
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/swarm/components"
)

// MoveSystem integrates positions of entities the flocking pipeline does
// not move: bullets and attacking boids.
type MoveSystem struct {
	boids   *ecs.Filter3[components.Position, components.Velocity, components.Boid]
	bullets *ecs.Filter3[components.Position, components.Velocity, components.Bullet]
}

// NewMoveSystem creates a new move system.
func NewMoveSystem(w *ecs.World) *MoveSystem {
	return &MoveSystem{
		boids:   ecs.NewFilter3[components.Position, components.Velocity, components.Boid](w),
		bullets: ecs.NewFilter3[components.Position, components.Velocity, components.Bullet](w),
	}
}

// Update advances positions by dt.
func (s *MoveSystem) Update(dt float64) {
	query := s.boids.Query()
	for query.Next() {
		pos, vel, boid := query.Get()
		if !boid.Attacking {
			continue
		}
		pos.Set(r3.Add(pos.Vec(), r3.Scale(dt, vel.Vec())))
	}

	bullets := s.bullets.Query()
	for bullets.Next() {
		pos, vel, _ := bullets.Get()
		pos.Set(r3.Add(pos.Vec(), r3.Scale(dt, vel.Vec())))
	}
}

// IndexBoids rebuilds index from the current boid positions.
func IndexBoids(index *EntityIndex, filter *ecs.Filter2[components.Position, components.Boid]) {
	index.Reset()
	query := filter.Query()
	for query.Next() {
		pos, _ := query.Get()
		index.Insert(query.Entity(), pos.Vec())
	}
	index.Build()
}
