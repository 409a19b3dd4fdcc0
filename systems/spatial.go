// Package systems contains ECS systems for the simulation.
package systems

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/swarm/spatial"
)

// Neighbor holds a nearby entity with its indexed position and squared
// distance from the query point.
type Neighbor struct {
	E      ecs.Entity
	Pos    r3.Vec
	DistSq float64
}

// EntityIndex answers radius queries over entity positions. It is rebuilt
// from scratch every tick after movement: Reset, Insert for each entity,
// then Build. Positions are captured at Insert and not tracked afterwards.
type EntityIndex struct {
	grid      spatial.Grid
	index     spatial.Index
	resolver  spatial.Resolver
	scratch   spatial.Scratch
	entities  []ecs.Entity
	positions []r3.Vec
	hashes    []spatial.Hash
	found     []int32
}

// NewEntityIndex creates an index with the given grid cell size.
func NewEntityIndex(cellSize float64) (*EntityIndex, error) {
	grid, err := spatial.NewGrid(cellSize)
	if err != nil {
		return nil, fmt.Errorf("creating entity grid: %w", err)
	}
	index, err := spatial.NewIndex(spatial.IndexSorted)
	if err != nil {
		return nil, err
	}
	return &EntityIndex{grid: grid, index: index}, nil
}

// Reset removes all entities.
func (x *EntityIndex) Reset() {
	x.entities = x.entities[:0]
	x.positions = x.positions[:0]
	x.hashes = x.hashes[:0]
}

// Insert adds an entity at p.
func (x *EntityIndex) Insert(e ecs.Entity, p r3.Vec) {
	x.entities = append(x.entities, e)
	x.positions = append(x.positions, p)
}

// Build hashes and indexes all inserted entities.
func (x *EntityIndex) Build() {
	x.hashes = x.hashes[:0]
	for _, p := range x.positions {
		x.hashes = append(x.hashes, x.grid.HashOf(p))
	}
	x.index.Build(x.hashes)
	x.resolver = spatial.NewResolver(x.grid, x.index, x.positions, x.grid.CellSize(), 1)
}

// Len returns the number of indexed entities.
func (x *EntityIndex) Len() int {
	return len(x.entities)
}

// QueryRadiusInto appends up to limit entities within radius of p to dst.
// A limit of zero or less means no limit.
func (x *EntityIndex) QueryRadiusInto(dst []Neighbor, p r3.Vec, radius float64, limit int) []Neighbor {
	if len(x.hashes) == 0 {
		return dst
	}
	x.found = x.resolver.QueryPoint(p, radius, limit, x.found[:0], &x.scratch)
	for _, i := range x.found {
		q := x.positions[i]
		dst = append(dst, Neighbor{E: x.entities[i], Pos: q, DistSq: r3.Norm2(r3.Sub(q, p))})
	}
	return dst
}

// Nearest returns the closest entity within radius of p that satisfies
// accept. A nil accept takes any entity.
func (x *EntityIndex) Nearest(p r3.Vec, radius float64, accept func(ecs.Entity) bool) (Neighbor, bool) {
	if len(x.hashes) == 0 {
		return Neighbor{}, false
	}
	x.found = x.resolver.QueryPoint(p, radius, 0, x.found[:0], &x.scratch)

	var best Neighbor
	ok := false
	for _, i := range x.found {
		e := x.entities[i]
		if accept != nil && !accept(e) {
			continue
		}
		q := x.positions[i]
		d := r3.Norm2(r3.Sub(q, p))
		if !ok || d < best.DistSq {
			best, ok = Neighbor{E: e, Pos: q, DistSq: d}, true
		}
	}
	return best, ok
}
