package flock

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// minNorm is the length below which a vector is treated as zero before
// normalizing.
const minNorm = 1e-12

// Steering holds the force components acting on one agent.
type Steering struct {
	Alignment  r3.Vec
	Cohesion   r3.Vec
	Separation r3.Vec
	Boundary   r3.Vec
}

// Acceleration returns the sum of all components.
func (s Steering) Acceleration() r3.Vec {
	return r3.Add(r3.Add(s.Alignment, s.Cohesion), r3.Add(s.Separation, s.Boundary))
}

// ComputeSteering reduces the neighbors of agent i into steering forces.
// positions and headings are the frozen snapshot arrays; neighbors holds
// indices into them and never contains i.
//
// Separation averages unit vectors pointing away from each neighbor.
// Neighbors at distance zero have no direction and are left out of that
// average only; they still count for alignment and cohesion.
func ComputeSteering(i int, positions, headings []r3.Vec, w Weights, neighbors []int32, s *Settings) Steering {
	var st Steering
	self := positions[i]

	if k := len(neighbors); k > 0 {
		var headingSum, positionSum, awaySum r3.Vec
		apart := 0
		for _, j := range neighbors {
			q := positions[j]
			headingSum = r3.Add(headingSum, headings[j])
			positionSum = r3.Add(positionSum, q)

			away := r3.Sub(self, q)
			if d := r3.Norm(away); d > 0 {
				awaySum = r3.Add(awaySum, r3.Scale(1/d, away))
				apart++
			}
		}

		inv := 1 / float64(k)
		st.Alignment = r3.Scale(s.AlignmentWeight*w.Alignment, safeUnit(r3.Scale(inv, headingSum)))
		st.Cohesion = r3.Scale(s.CohesionWeight*w.Cohesion, safeUnit(r3.Sub(r3.Scale(inv, positionSum), self)))
		if apart > 0 {
			st.Separation = r3.Scale(s.SeparationWeight*w.Separation, safeUnit(r3.Scale(1/float64(apart), awaySum)))
		}
	}

	st.Boundary = BoundarySteer(self, s.Boundary)
	return st
}

// BoundarySteer returns the correction for an agent at p: zero inside the
// boundary, otherwise Weight along the direction to the center.
func BoundarySteer(p r3.Vec, b Boundary) r3.Vec {
	if b.Weight == 0 || !Outside(p, b) {
		return r3.Vec{}
	}
	return r3.Scale(b.Weight, safeUnit(r3.Sub(b.Center, p)))
}

// Outside reports whether p lies outside the boundary region.
func Outside(p r3.Vec, b Boundary) bool {
	d := r3.Sub(p, b.Center)
	switch b.Shape {
	case BoundaryBox:
		return math.Abs(d.X) > b.Size || math.Abs(d.Y) > b.Size || math.Abs(d.Z) > b.Size
	default:
		return r3.Norm2(d) > b.Size*b.Size
	}
}

// Integrate applies acc over dt, caps the speed at maxSpeed and advances
// the position with the capped velocity.
func Integrate(pos, vel, acc r3.Vec, dt, maxSpeed float64) (newPos, newVel r3.Vec) {
	newVel = clampSpeed(r3.Add(vel, r3.Scale(dt, acc)), maxSpeed)
	newPos = r3.Add(pos, r3.Scale(dt, newVel))
	return newPos, newVel
}

func clampSpeed(v r3.Vec, maxSpeed float64) r3.Vec {
	speed := r3.Norm(v)
	if speed <= maxSpeed {
		return v
	}
	if maxSpeed == 0 {
		return r3.Vec{}
	}
	// Rounding can leave the scaled norm an ulp or two above the cap
	f := maxSpeed / speed
	out := r3.Scale(f, v)
	for r3.Norm(out) > maxSpeed {
		f = math.Nextafter(f, 0)
		out = r3.Scale(f, v)
	}
	return out
}

// safeUnit normalizes v, returning zero for degenerate input instead of NaN.
func safeUnit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if !(n > minNorm) || math.IsInf(n, 0) {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}
