// Package components defines ECS components for the simulation.
package components

import "github.com/pthm-cable/swarm/flock"

// Boid marks a flocking agent.
type Boid struct {
	Weights flock.Weights // Per-boid multipliers on the global behavior weights
	Wave    int32         // Wave the boid was spawned in

	// Attacking boids leave the flock and dive at the player. They are
	// suspended from flocking until the attack resets.
	Attacking bool
}

// Agent converts the boid's state to a flocking record.
func (b *Boid) Agent(pos *Position, vel *Velocity) flock.Agent {
	return flock.Agent{
		Position:  pos.Vec(),
		Velocity:  vel.Vec(),
		Weights:   b.Weights,
		Suspended: b.Attacking,
	}
}

// Lifetime removes its entity once Remaining reaches zero.
type Lifetime struct {
	Remaining float64 // seconds
}
