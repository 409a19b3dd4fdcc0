package flock

import "gonum.org/v1/gonum/spatial/r3"

// Weights scale the global behavior weights for a single agent.
type Weights struct {
	Alignment  float64
	Cohesion   float64
	Separation float64
}

// DefaultWeights leaves the global weights unchanged.
var DefaultWeights = Weights{Alignment: 1, Cohesion: 1, Separation: 1}

// Agent is one record of a step's input and output.
type Agent struct {
	Position r3.Vec
	Velocity r3.Vec
	Weights  Weights

	// Suspended agents are left out of the step: they are nobody's neighbor
	// and are copied to the output unchanged.
	Suspended bool
}

// Heading returns the unit direction of travel, or zero when stationary.
func (a Agent) Heading() r3.Vec {
	return safeUnit(a.Velocity)
}

// Speed returns the velocity magnitude.
func (a Agent) Speed() float64 {
	return r3.Norm(a.Velocity)
}
