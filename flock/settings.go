// Package flock computes one flocking step over a snapshot of agents.
//
// A step hashes every active agent into a spatial grid, resolves each
// agent's neighbors within a radius, reduces them into alignment, cohesion
// and separation forces, adds a boundary correction and integrates velocity
// and position. Stages run in order with a barrier between them; within a
// stage agents are processed in parallel by a persistent worker pool.
package flock

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/swarm/spatial"
)

// ErrInvalidSettings is wrapped by every settings validation failure.
var ErrInvalidSettings = errors.New("flock: invalid settings")

// BoundaryShape selects the containment test.
type BoundaryShape string

const (
	BoundarySphere BoundaryShape = "sphere"
	BoundaryBox    BoundaryShape = "box"
)

// Boundary keeps agents near Center. Agents outside the region are steered
// back toward Center with a force of magnitude Weight. For a box, Size is
// the half-extent on every axis. A zero Weight disables the boundary.
type Boundary struct {
	Shape  BoundaryShape
	Center r3.Vec
	Size   float64
	Weight float64
}

// Settings is the read-only configuration of a flocking step.
type Settings struct {
	NeighborRadius float64
	MaxNeighbors   int
	CellSize       float64 // 0 uses NeighborRadius
	Index          spatial.IndexKind

	MoveSpeed        float64 // velocity magnitude cap
	AlignmentWeight  float64
	CohesionWeight   float64
	SeparationWeight float64

	Boundary Boundary
}

// EffectiveCellSize returns the grid cell size used for hashing.
func (s Settings) EffectiveCellSize() float64 {
	if s.CellSize == 0 {
		return s.NeighborRadius
	}
	return s.CellSize
}

// Validate reports the first configuration error.
func (s Settings) Validate() error {
	switch {
	case !positiveFinite(s.NeighborRadius):
		return fmt.Errorf("%w: neighbor radius must be positive, got %v", ErrInvalidSettings, s.NeighborRadius)
	case s.MaxNeighbors < 1:
		return fmt.Errorf("%w: max neighbors must be at least 1, got %d", ErrInvalidSettings, s.MaxNeighbors)
	case s.CellSize < 0 || math.IsNaN(s.CellSize) || math.IsInf(s.CellSize, 0):
		return fmt.Errorf("%w: cell size must be positive, got %v", ErrInvalidSettings, s.CellSize)
	case s.MoveSpeed < 0 || math.IsNaN(s.MoveSpeed) || math.IsInf(s.MoveSpeed, 0):
		return fmt.Errorf("%w: move speed must be non-negative, got %v", ErrInvalidSettings, s.MoveSpeed)
	case !finite(s.AlignmentWeight) || !finite(s.CohesionWeight) || !finite(s.SeparationWeight):
		return fmt.Errorf("%w: behavior weights must be finite", ErrInvalidSettings)
	}

	switch s.Index {
	case "", spatial.IndexSorted, spatial.IndexCellMap:
	default:
		return fmt.Errorf("%w: unknown index %q", ErrInvalidSettings, s.Index)
	}

	b := s.Boundary
	switch b.Shape {
	case "", BoundarySphere, BoundaryBox:
	default:
		return fmt.Errorf("%w: unknown boundary shape %q", ErrInvalidSettings, b.Shape)
	}
	if b.Size < 0 || !finite(b.Size) || !finite(b.Weight) || !finiteVec(b.Center) {
		return fmt.Errorf("%w: boundary size must be non-negative and all boundary values finite", ErrInvalidSettings)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}
