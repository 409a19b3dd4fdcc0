package spatial

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// NeighborSet stores up to a fixed number of neighbor indices per agent in
// one flat array. Agent i owns slots [i*stride, i*stride+counts[i]), so
// agents can be resolved concurrently without synchronization.
type NeighborSet struct {
	stride int
	counts []int32
	slots  []int32
}

// Reset sizes the set for n agents with at most maxNeighbors each and
// clears all counts. Existing capacity is reused.
func (s *NeighborSet) Reset(n, maxNeighbors int) {
	s.stride = maxNeighbors
	s.counts = slices.Grow(s.counts[:0], n)[:n]
	clear(s.counts)
	need := n * maxNeighbors
	s.slots = slices.Grow(s.slots[:0], need)[:need]
}

// Len returns the number of agents in the set.
func (s *NeighborSet) Len() int {
	return len(s.counts)
}

// Neighbors returns the neighbor indices of agent i.
func (s *NeighborSet) Neighbors(i int) []int32 {
	off := i * s.stride
	return s.slots[off : off+int(s.counts[i])]
}

// Count returns the number of neighbors of agent i.
func (s *NeighborSet) Count(i int) int {
	return int(s.counts[i])
}

// Total returns the sum of all neighbor counts.
func (s *NeighborSet) Total() int {
	t := 0
	for _, c := range s.counts {
		t += int(c)
	}
	return t
}

// smallReach is the widest scan that de-duplicates buckets with a linear
// list. Wider scans switch to a set.
const smallReach = 1

// Scratch is per-worker query state.
type Scratch struct {
	visited []Hash
	seen    map[Hash]struct{}
	useSet  bool
}

// resetVisited clears the visited buckets before a scan of the given reach.
func (s *Scratch) resetVisited(reach int) {
	s.useSet = reach > smallReach
	if s.useSet {
		if s.seen == nil {
			s.seen = make(map[Hash]struct{})
		}
		clear(s.seen)
		return
	}
	s.visited = s.visited[:0]
}

// visit marks h as visited and reports whether it was new in this scan.
func (s *Scratch) visit(h Hash) bool {
	if s.useSet {
		if _, ok := s.seen[h]; ok {
			return false
		}
		s.seen[h] = struct{}{}
		return true
	}
	if slices.Contains(s.visited, h) {
		return false
	}
	s.visited = append(s.visited, h)
	return true
}

// ResolveStats counts resolver work for one range of agents.
type ResolveStats struct {
	Candidates int // exact distance tests performed
	Accepted   int // neighbors stored
	Saturated  int // agents that hit the neighbor cap
}

// Add accumulates o into s.
func (s *ResolveStats) Add(o ResolveStats) {
	s.Candidates += o.Candidates
	s.Accepted += o.Accepted
	s.Saturated += o.Saturated
}

// Resolver answers radius queries against a built index. It only reads its
// inputs and may be shared by any number of goroutines, each with its own
// Scratch.
type Resolver struct {
	grid         Grid
	index        Index
	positions    []r3.Vec
	radius       float64
	radiusSq     float64
	reach        int
	maxNeighbors int
}

// NewResolver creates a resolver over positions, which must be the same
// array the index was built from.
func NewResolver(grid Grid, index Index, positions []r3.Vec, radius float64, maxNeighbors int) Resolver {
	return Resolver{
		grid:         grid,
		index:        index,
		positions:    positions,
		radius:       radius,
		radiusSq:     radius * radius,
		reach:        grid.Reach(radius),
		maxNeighbors: maxNeighbors,
	}
}

// Reach returns the half-width of the scanned cell block.
func (r *Resolver) Reach() int {
	return r.reach
}

// ResolveRange fills set for agents [start, end). The set must have been
// Reset for len(positions) agents and the resolver's max neighbor count.
func (r *Resolver) ResolveRange(start, end int, set *NeighborSet, scratch *Scratch) ResolveStats {
	var stats ResolveStats
	for i := start; i < end; i++ {
		off := i * set.stride
		dst := set.slots[off : off : off+set.stride]
		dst, candidates := r.query(r.positions[i], r.radiusSq, r.reach, int32(i), r.maxNeighbors, dst, scratch)
		set.counts[i] = int32(len(dst))

		stats.Candidates += candidates
		stats.Accepted += len(dst)
		if len(dst) >= r.maxNeighbors {
			stats.Saturated++
		}
	}
	return stats
}

// Resolve appends the neighbors of agent i to dst.
func (r *Resolver) Resolve(i int, dst []int32, scratch *Scratch) []int32 {
	dst, _ = r.query(r.positions[i], r.radiusSq, r.reach, int32(i), r.maxNeighbors, dst, scratch)
	return dst
}

// QueryPoint appends up to limit agents within radius of p to dst. A limit
// of zero or less means no limit. The radius may differ from the resolver's
// own; the scanned block grows to cover it.
func (r *Resolver) QueryPoint(p r3.Vec, radius float64, limit int, dst []int32, scratch *Scratch) []int32 {
	if limit <= 0 {
		limit = len(r.positions)
	}
	dst, _ = r.query(p, radius*radius, r.grid.Reach(radius), -1, limit, dst, scratch)
	return dst
}

// query scans the (2*reach+1)^3 block around p. Buckets already visited in
// this query because of a hash collision are skipped so no agent is
// reported twice. The scan stops once limit neighbors are found; which
// neighbors survive truncation depends on scan and bucket order and is not
// meaningful.
func (r *Resolver) query(p r3.Vec, radiusSq float64, reach int, exclude int32, limit int, dst []int32, scratch *Scratch) ([]int32, int) {
	if len(r.positions) == 0 || limit <= 0 {
		return dst, 0
	}

	base := len(dst)
	candidates := 0
	center := r.grid.CellOf(p)
	scratch.resetVisited(reach)
	rc := int32(reach)

	for dx := -rc; dx <= rc; dx++ {
		for dy := -rc; dy <= rc; dy++ {
			for dz := -rc; dz <= rc; dz++ {
				h := HashCell(Cell{X: center.X + dx, Y: center.Y + dy, Z: center.Z + dz})
				if !scratch.visit(h) {
					continue
				}

				for _, j := range r.index.Bucket(h) {
					if j == exclude {
						continue
					}
					candidates++
					d := r3.Sub(r.positions[j], p)
					if r3.Norm2(d) <= radiusSq {
						dst = append(dst, j)
						if len(dst)-base >= limit {
							return dst, candidates
						}
					}
				}
			}
		}
	}
	return dst, candidates
}
