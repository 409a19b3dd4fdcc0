// Package spatial provides the per-tick spatial hash used for neighbor queries.
//
// Positions are bucketed into a uniform 3D grid of cubic cells. Each cell
// coordinate is reduced to a 32-bit hash; agents are then ordered (or mapped)
// by hash so that a radius query only has to visit the buckets of the cells
// around the query point. Hash equality is a candidate filter only: every
// candidate is re-checked against the exact query radius.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidCellSize is returned when a grid is configured with a cell size
// that is not a positive finite number.
var ErrInvalidCellSize = errors.New("spatial: cell size must be positive and finite")

// Hash mixing primes.
const (
	primeX = 73856093
	primeY = 19349663
	primeZ = 83492791
)

// Cell is an integer grid coordinate.
type Cell struct {
	X, Y, Z int32
}

// Hash is the scalar key of a cell. Distinct cells may share a hash.
type Hash int32

// HashCell mixes a cell coordinate into a hash. Multiplication wraps in
// two's complement.
func HashCell(c Cell) Hash {
	return Hash(c.X*primeX ^ c.Y*primeY ^ c.Z*primeZ)
}

// Grid maps world positions to cells.
type Grid struct {
	cellSize    float64
	invCellSize float64
}

// NewGrid creates a grid with the given cell edge length.
func NewGrid(cellSize float64) (Grid, error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return Grid{}, fmt.Errorf("%w: got %v", ErrInvalidCellSize, cellSize)
	}
	return Grid{cellSize: cellSize, invCellSize: 1 / cellSize}, nil
}

// CellSize returns the cell edge length.
func (g Grid) CellSize() float64 {
	return g.cellSize
}

// CellOf returns the cell containing p. Coordinates are floored, so a
// position exactly on a cell boundary belongs to the cell above it.
func (g Grid) CellOf(p r3.Vec) Cell {
	return Cell{
		X: floorDiv(p.X, g.cellSize),
		Y: floorDiv(p.Y, g.cellSize),
		Z: floorDiv(p.Z, g.cellSize),
	}
}

// HashOf returns the hash of the cell containing p.
func (g Grid) HashOf(p r3.Vec) Hash {
	return HashCell(g.CellOf(p))
}

// Reach returns how many cells on each side of the query cell must be
// scanned to cover radius. A cell size >= radius gives 1 (a 3x3x3 block).
func (g Grid) Reach(radius float64) int {
	r := int(math.Ceil(radius * g.invCellSize))
	if r < 1 {
		r = 1
	}
	return r
}

// floorDiv divides by the true cell size rather than multiplying by its
// inverse so that boundary positions land in the same cell on every call.
// Results outside the int32 range saturate; NaN maps to the lowest cell.
func floorDiv(v, size float64) int32 {
	f := math.Floor(v / size)
	switch {
	case f >= math.MaxInt32:
		return math.MaxInt32
	case !(f > math.MinInt32):
		return math.MinInt32
	}
	return int32(f)
}
