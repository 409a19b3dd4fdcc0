package flock

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/swarm/spatial"
)

// Phase names reported to a PhaseTimer. PhaseCollect and PhaseCommit are
// reported by callers that gather agents from a store and write them back.
const (
	PhaseCollect = "flock_collect"
	PhaseHash    = "flock_hash"
	PhaseIndex   = "flock_index"
	PhaseResolve = "flock_resolve"
	PhaseForces  = "flock_forces"
	PhaseCommit  = "flock_commit"
)

// PhaseTimer receives the name of each stage as it starts.
type PhaseTimer interface {
	StartPhase(name string)
}

// Options tune how a pipeline executes. The zero value is valid.
type Options struct {
	Workers           int // 0 uses GOMAXPROCS
	ParallelThreshold int // 0 uses DefaultParallelThreshold
	Timer             PhaseTimer
}

// Stats summarizes one step.
type Stats struct {
	Agents     int // input records
	Active     int // agents that took part in the step
	Suspended  int // agents passed through because they were suspended
	Rejected   int // agents passed through because their state was not finite
	Neighbors  int // total neighbor entries
	Candidates int // exact distance tests performed
	Saturated  int // agents that hit the neighbor cap
}

// MeanNeighbors returns the average neighbor count of active agents.
func (s Stats) MeanNeighbors() float64 {
	if s.Active == 0 {
		return 0
	}
	return float64(s.Neighbors) / float64(s.Active)
}

// intent is the computed state of one active agent.
type intent struct {
	Position r3.Vec
	Velocity r3.Vec
	OK       bool
}

// workerScratch holds per-worker reusable state.
type workerScratch struct {
	query    spatial.Scratch
	resolve  spatial.ResolveStats
	rejected int
}

// Pipeline runs flocking steps. Scratch buffers keep their capacity between
// steps but their contents are rebuilt every step. A Pipeline is not safe
// for concurrent Step calls.
type Pipeline struct {
	settings  Settings
	grid      spatial.Grid
	index     spatial.Index
	pool      *workerPool
	threshold int
	timer     PhaseTimer

	// Snapshot of active agents, indexed by snapshot position.
	source     []int32 // snapshot index -> input index
	positions  []r3.Vec
	velocities []r3.Vec
	headings   []r3.Vec
	weights    []Weights
	hashes     []spatial.Hash

	neighbors spatial.NeighborSet
	intents   []intent
	scratches []workerScratch
}

// NewPipeline validates settings and creates a pipeline. Invalid settings
// are refused.
func NewPipeline(s Settings, opts Options) (*Pipeline, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	grid, err := spatial.NewGrid(s.EffectiveCellSize())
	if err != nil {
		return nil, fmt.Errorf("creating grid: %w", err)
	}
	index, err := spatial.NewIndex(s.Index)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}

	threshold := opts.ParallelThreshold
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}

	pool := newWorkerPool(opts.Workers)
	return &Pipeline{
		settings:  s,
		grid:      grid,
		index:     index,
		pool:      pool,
		threshold: threshold,
		timer:     opts.Timer,
		scratches: make([]workerScratch, pool.numWorkers),
	}, nil
}

// Settings returns the pipeline's settings.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Close stops the worker goroutines.
func (p *Pipeline) Close() {
	p.pool.stop()
}

// Step advances every agent of in by dt and writes the result to out, which
// must have the same length. out[i] is the successor of in[i]. in and out
// may be the same slice.
func (p *Pipeline) Step(in, out []Agent, dt float64) (Stats, error) {
	if len(out) != len(in) {
		return Stats{}, fmt.Errorf("flock: output length %d does not match input length %d", len(out), len(in))
	}
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return Stats{}, fmt.Errorf("flock: delta time must be finite and non-negative, got %v", dt)
	}

	stats := Stats{Agents: len(in)}
	if len(in) == 0 {
		return stats, nil
	}

	p.collect(in, &stats)
	if &out[0] != &in[0] {
		copy(out, in)
	}

	n := len(p.source)
	stats.Active = n
	if n == 0 {
		return stats, nil
	}

	for i := range p.scratches {
		p.scratches[i].resolve = spatial.ResolveStats{}
		p.scratches[i].rejected = 0
	}

	p.startPhase(PhaseHash)
	p.forEach(n, p.hashRange)

	p.startPhase(PhaseIndex)
	p.index.Build(p.hashes)

	p.startPhase(PhaseResolve)
	p.neighbors.Reset(n, p.settings.MaxNeighbors)
	resolver := spatial.NewResolver(p.grid, p.index, p.positions, p.settings.NeighborRadius, p.settings.MaxNeighbors)
	p.forEach(n, func(worker, start, end int) {
		s := &p.scratches[worker]
		s.resolve.Add(resolver.ResolveRange(start, end, &p.neighbors, &s.query))
	})

	p.startPhase(PhaseForces)
	if cap(p.intents) < n {
		p.intents = make([]intent, n)
	}
	p.intents = p.intents[:n]
	p.forEach(n, func(worker, start, end int) {
		p.forcesRange(worker, start, end, dt)
	})

	p.commit(out, &stats)
	return stats, nil
}

// collect builds the snapshot of active agents. Suspended agents and agents
// with non-finite state are left out.
func (p *Pipeline) collect(in []Agent, stats *Stats) {
	p.source = p.source[:0]
	p.positions = p.positions[:0]
	p.velocities = p.velocities[:0]
	p.weights = p.weights[:0]

	for i := range in {
		a := &in[i]
		if a.Suspended {
			stats.Suspended++
			continue
		}
		if !finiteVec(a.Position) || !finiteVec(a.Velocity) {
			stats.Rejected++
			continue
		}
		p.source = append(p.source, int32(i))
		p.positions = append(p.positions, a.Position)
		p.velocities = append(p.velocities, a.Velocity)
		p.weights = append(p.weights, a.Weights)
	}

	n := len(p.source)
	if cap(p.headings) < n {
		p.headings = make([]r3.Vec, n)
		p.hashes = make([]spatial.Hash, n)
	}
	p.headings = p.headings[:n]
	p.hashes = p.hashes[:n]
}

func (p *Pipeline) hashRange(_, start, end int) {
	for i := start; i < end; i++ {
		p.hashes[i] = p.grid.HashOf(p.positions[i])
		p.headings[i] = safeUnit(p.velocities[i])
	}
}

func (p *Pipeline) forcesRange(worker, start, end int, dt float64) {
	s := &p.settings
	for i := start; i < end; i++ {
		st := ComputeSteering(i, p.positions, p.headings, p.weights[i], p.neighbors.Neighbors(i), s)
		pos, vel := Integrate(p.positions[i], p.velocities[i], st.Acceleration(), dt, s.MoveSpeed)

		in := &p.intents[i]
		if finiteVec(pos) && finiteVec(vel) {
			in.Position, in.Velocity, in.OK = pos, vel, true
		} else {
			in.OK = false
			p.scratches[worker].rejected++
		}
	}
}

// commit writes intents to their input slots and folds per-worker counters
// into stats.
func (p *Pipeline) commit(out []Agent, stats *Stats) {
	for i, src := range p.source {
		in := &p.intents[i]
		if !in.OK {
			continue
		}
		a := &out[src]
		a.Position = in.Position
		a.Velocity = in.Velocity
	}

	for i := range p.scratches {
		s := &p.scratches[i]
		stats.Neighbors += s.resolve.Accepted
		stats.Candidates += s.resolve.Candidates
		stats.Saturated += s.resolve.Saturated
		stats.Rejected += s.rejected
	}
}

// Neighbors returns the input indices of the neighbors found for input
// agent i in the last step, appended to dst. Suspended agents have none.
func (p *Pipeline) Neighbors(i int, dst []int) []int {
	for k, src := range p.source {
		if int(src) != i {
			continue
		}
		for _, j := range p.neighbors.Neighbors(k) {
			dst = append(dst, int(p.source[j]))
		}
		break
	}
	return dst
}

func (p *Pipeline) forEach(n int, fn stageFunc) {
	if n < p.threshold {
		fn(0, 0, n)
		return
	}
	p.pool.run(n, fn)
}

func (p *Pipeline) startPhase(name string) {
	if p.timer != nil {
		p.timer.StartPhase(name)
	}
}
