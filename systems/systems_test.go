package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/flock"
)

// testWorld bundles a world with the mappers tests use to place entities.
type testWorld struct {
	w       *ecs.World
	boids   *ecs.Map4[components.Position, components.Velocity, components.Boid, components.Health]
	bullets *ecs.Map4[components.Position, components.Velocity, components.Bullet, components.Lifetime]
	posMap  *ecs.Map1[components.Position]
	velMap  *ecs.Map1[components.Velocity]
	boidMap *ecs.Map1[components.Boid]
	hpMap   *ecs.Map1[components.Health]
	indexed *ecs.Filter2[components.Position, components.Boid]
}

func newTestWorld() *testWorld {
	w := ecs.NewWorld()
	return &testWorld{
		w:       w,
		boids:   ecs.NewMap4[components.Position, components.Velocity, components.Boid, components.Health](w),
		bullets: ecs.NewMap4[components.Position, components.Velocity, components.Bullet, components.Lifetime](w),
		posMap:  ecs.NewMap1[components.Position](w),
		velMap:  ecs.NewMap1[components.Velocity](w),
		boidMap: ecs.NewMap1[components.Boid](w),
		hpMap:   ecs.NewMap1[components.Health](w),
		indexed: ecs.NewFilter2[components.Position, components.Boid](w),
	}
}

func (tw *testWorld) addBoid(p, v r3.Vec, attacking bool) ecs.Entity {
	var pos components.Position
	var vel components.Velocity
	pos.Set(p)
	vel.Set(v)
	boid := components.Boid{Weights: flock.DefaultWeights, Attacking: attacking}
	health := components.Health{Value: 3}
	return tw.boids.NewEntity(&pos, &vel, &boid, &health)
}

func (tw *testWorld) addBullet(p, v r3.Vec, damage, radius, life float64) ecs.Entity {
	var pos components.Position
	var vel components.Velocity
	pos.Set(p)
	vel.Set(v)
	bullet := components.Bullet{Damage: damage, Radius: radius}
	lifetime := components.Lifetime{Remaining: life}
	return tw.bullets.NewEntity(&pos, &vel, &bullet, &lifetime)
}

func (tw *testWorld) index(t *testing.T) *EntityIndex {
	t.Helper()
	idx, err := NewEntityIndex(10)
	if err != nil {
		t.Fatalf("NewEntityIndex: %v", err)
	}
	IndexBoids(idx, tw.indexed)
	return idx
}

func testCombatConfig() config.CombatConfig {
	return config.CombatConfig{
		PlayerPosition:  config.Vec3{},
		PlayerHitRadius: 2,
		GroundHeight:    0,
		AttackRange:     20,
		AttackChance:    1,
		ResetDistance:   10,
		AttackSpeedMul:  2,
		BoidHealth:      3,
		Turret: config.TurretConfig{
			Enabled:        true,
			Position:       config.Vec3{},
			FireInterval:   0.5,
			Range:          40,
			BulletSpeed:    10,
			BulletDamage:   1,
			BulletLifetime: 2,
			BulletRadius:   1,
		},
	}
}

func TestEntityIndex_QueryAndNearest(t *testing.T) {
	tw := newTestWorld()
	near := tw.addBoid(r3.Vec{X: 1}, r3.Vec{}, false)
	mid := tw.addBoid(r3.Vec{X: 4}, r3.Vec{}, true)
	tw.addBoid(r3.Vec{X: 30}, r3.Vec{}, false)

	idx := tw.index(t)
	if idx.Len() != 3 {
		t.Fatalf("Len = %d, want 3", idx.Len())
	}

	found := idx.QueryRadiusInto(nil, r3.Vec{}, 5, 0)
	if len(found) != 2 {
		t.Fatalf("found %d entities within 5, want 2", len(found))
	}

	n, ok := idx.Nearest(r3.Vec{}, 50, nil)
	if !ok || n.E != near {
		t.Errorf("Nearest = %v %v, want %v", n.E, ok, near)
	}
	if math.Abs(n.DistSq-1) > 1e-12 || n.Pos != (r3.Vec{X: 1}) {
		t.Errorf("Nearest neighbor = %+v", n)
	}

	attacking, ok := idx.Nearest(r3.Vec{}, 50, func(e ecs.Entity) bool {
		return tw.boidMap.Get(e).Attacking
	})
	if !ok || attacking.E != mid {
		t.Errorf("Nearest attacking = %v %v, want %v", attacking.E, ok, mid)
	}

	if _, ok := idx.Nearest(r3.Vec{Z: 500}, 5, nil); ok {
		t.Error("expected no entity far from everything")
	}
}

func TestEntityIndex_EmptyAndLimit(t *testing.T) {
	idx, err := NewEntityIndex(10)
	if err != nil {
		t.Fatal(err)
	}
	if got := idx.QueryRadiusInto(nil, r3.Vec{}, 5, 0); len(got) != 0 {
		t.Errorf("query on unbuilt index returned %d entities", len(got))
	}

	tw := newTestWorld()
	for i := 0; i < 10; i++ {
		tw.addBoid(r3.Vec{X: float64(i) * 0.1}, r3.Vec{}, false)
	}
	idx = tw.index(t)
	if got := idx.QueryRadiusInto(nil, r3.Vec{}, 5, 3); len(got) != 3 {
		t.Errorf("limited query returned %d, want 3", len(got))
	}

	if _, err := NewEntityIndex(0); err == nil {
		t.Error("expected error for zero cell size")
	}
}

func TestFlockSystem_SkipsAttackingBoids(t *testing.T) {
	tw := newTestWorld()
	settings := flock.Settings{
		NeighborRadius:   5,
		MaxNeighbors:     10,
		MoveSpeed:        5,
		AlignmentWeight:  1,
		CohesionWeight:   1,
		SeparationWeight: 1,
		Boundary:         flock.Boundary{Shape: flock.BoundarySphere, Size: 100, Weight: 10},
	}
	sys, err := NewFlockSystem(tw.w, settings, flock.Options{})
	if err != nil {
		t.Fatalf("NewFlockSystem: %v", err)
	}
	defer sys.Close()

	a := tw.addBoid(r3.Vec{}, r3.Vec{X: 1}, false)
	b := tw.addBoid(r3.Vec{X: 1}, r3.Vec{X: 1}, false)
	attacker := tw.addBoid(r3.Vec{Y: 1}, r3.Vec{Z: 3}, true)

	stats, err := sys.Update(0.1)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if stats.Agents != 3 || stats.Active != 2 || stats.Suspended != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if p := tw.posMap.Get(attacker).Vec(); p != (r3.Vec{Y: 1}) {
		t.Errorf("attacking boid moved to %v", p)
	}
	if v := tw.velMap.Get(attacker).Vec(); v != (r3.Vec{Z: 3}) {
		t.Errorf("attacking boid velocity changed to %v", v)
	}
	if p := tw.posMap.Get(a).Vec(); p == (r3.Vec{}) {
		t.Error("flocking boid did not move")
	}
	for _, e := range []ecs.Entity{a, b} {
		if speed := r3.Norm(tw.velMap.Get(e).Vec()); speed > settings.MoveSpeed+1e-9 {
			t.Errorf("speed %v exceeds cap", speed)
		}
	}
}

func TestNewFlockSystem_InvalidSettings(t *testing.T) {
	tw := newTestWorld()
	if _, err := NewFlockSystem(tw.w, flock.Settings{}, flock.Options{}); err == nil {
		t.Error("expected error for zero settings")
	}
}

func TestWaveAllowance(t *testing.T) {
	tests := []struct {
		wave, maxBoids, want int
	}{
		{0, 20000, 32},
		{1, 20000, 64},
		{3, 20000, 256},
		{9, 20000, 16384},
		{10, 20000, 20000},
		{20, 20000, 20000},
		{40, 20000, 20000},
		{-1, 20000, 32},
	}
	for _, tc := range tests {
		if got := WaveAllowance(tc.wave, tc.maxBoids); got != tc.want {
			t.Errorf("WaveAllowance(%d, %d) = %d, want %d", tc.wave, tc.maxBoids, got, tc.want)
		}
	}
}

func TestWaveSystem(t *testing.T) {
	ws := NewWaveSystem(config.SpawnerConfig{WaveInterval: 1, MaxWaves: 2, MaxBoids: 1000})
	if ws.Wave() != 0 || ws.Allowance() != 32 {
		t.Fatalf("initial wave %d allowance %d", ws.Wave(), ws.Allowance())
	}

	if ws.Update(0.5) {
		t.Error("wave started before interval")
	}
	if !ws.Update(0.5) {
		t.Error("wave did not start at interval")
	}
	if ws.Wave() != 1 || ws.Allowance() != 64 {
		t.Errorf("wave %d allowance %d, want 1 and 64", ws.Wave(), ws.Allowance())
	}

	ws.Update(1)
	if ws.Update(1) {
		t.Error("wave started beyond max waves")
	}
	if ws.Wave() != 2 {
		t.Errorf("wave = %d, want 2", ws.Wave())
	}
}

func TestSpawnerSystem(t *testing.T) {
	tw := newTestWorld()
	cfg := config.SpawnerConfig{
		MaxPerTick: 10,
		SpawnPoint: config.Vec3{X: 5, Y: 30, Z: -5},
		Spread:     10,
		MinSpeed:   1,
		MaxSpeed:   3,
	}
	sp := NewSpawnerSystem(tw.w, cfg, 3, rand.New(rand.NewSource(1)))

	if n := sp.Update(0, 25, 0); n != 10 {
		t.Errorf("spawned %d, want max per tick 10", n)
	}
	if n := sp.Update(sp.Count(), 15, 0); n != 5 {
		t.Errorf("spawned %d, want 5 to reach allowance", n)
	}
	if n := sp.Update(sp.Count(), 15, 0); n != 0 {
		t.Errorf("spawned %d at allowance", n)
	}
	if sp.Count() != 15 {
		t.Fatalf("Count = %d, want 15", sp.Count())
	}

	center := cfg.SpawnPoint.Vec()
	query := tw.indexed.Query()
	for query.Next() {
		pos, _ := query.Get()
		d := r3.Sub(pos.Vec(), center)
		if math.Abs(d.X) > 10 || math.Abs(d.Y) > 10 || math.Abs(d.Z) > 10 {
			t.Errorf("spawn offset %v outside spread", d)
		}
		speed := r3.Norm(tw.velMap.Get(query.Entity()).Vec())
		if speed < 1-1e-9 || speed > 3+1e-9 {
			t.Errorf("spawn speed %v outside [1, 3]", speed)
		}
		if hp := tw.hpMap.Get(query.Entity()); hp.Value != 3 {
			t.Errorf("spawn health %v, want 3", hp.Value)
		}
	}
}

func TestSpawnerSystem_BoidLifetime(t *testing.T) {
	tw := newTestWorld()
	cfg := config.SpawnerConfig{MaxPerTick: 5, MaxSpeed: 1, BoidLifetime: 0.5}
	sp := NewSpawnerSystem(tw.w, cfg, 1, rand.New(rand.NewSource(2)))
	sp.Update(0, 5, 0)

	life := NewLifetimeSystem(tw.w)
	if n := life.Update(0.25); n != 0 {
		t.Errorf("expired %d early", n)
	}
	if n := life.Update(0.25); n != 5 {
		t.Errorf("expired %d, want 5", n)
	}
	if sp.Count() != 0 {
		t.Errorf("Count = %d after expiry", sp.Count())
	}
}

func TestRandomDirection(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		d := RandomDirection(rng)
		if math.Abs(r3.Norm(d)-1) > 1e-9 {
			t.Fatalf("|direction| = %v", r3.Norm(d))
		}
	}
}

func TestDiveDirection(t *testing.T) {
	player := r3.Vec{}
	tests := []struct {
		name       string
		p          r3.Vec
		wantDir    r3.Vec
		wantGround float64
	}{
		{"high above drops", r3.Vec{X: 10, Y: 20}, r3.Vec{Y: -1}, 20},
		{"on ground heads to player", r3.Vec{X: 10}, r3.Vec{X: -1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir, g := DiveDirection(tc.p, player, 0)
			if r3.Norm(r3.Sub(dir, tc.wantDir)) > 1e-9 {
				t.Errorf("dir = %v, want %v", dir, tc.wantDir)
			}
			if math.Abs(g-tc.wantGround) > 1e-9 {
				t.Errorf("ground distance = %v, want %v", g, tc.wantGround)
			}
		})
	}

	// Halfway down the blend is an even mix.
	dir, _ := DiveDirection(r3.Vec{X: 10, Y: 2.5}, r3.Vec{X: 10 - 2.5, Y: 2.5}, 0)
	want := r3.Vec{X: -0.5, Y: -0.5}
	if r3.Norm(r3.Sub(dir, want)) > 1e-9 {
		t.Errorf("blended dir = %v, want %v", dir, want)
	}
}

func TestAttackRangeSystem(t *testing.T) {
	tw := newTestWorld()
	inRange := tw.addBoid(r3.Vec{X: 5}, r3.Vec{}, false)
	outOfRange := tw.addBoid(r3.Vec{X: 50}, r3.Vec{}, false)
	tw.addBoid(r3.Vec{X: -5}, r3.Vec{}, true)

	sys := NewAttackRangeSystem(tw.w, testCombatConfig(), rand.New(rand.NewSource(4)))
	if n := sys.Update(tw.index(t)); n != 1 {
		t.Errorf("started %d attacks, want 1", n)
	}
	if !tw.boidMap.Get(inRange).Attacking {
		t.Error("boid in range not attacking")
	}
	if tw.boidMap.Get(outOfRange).Attacking {
		t.Error("boid out of range attacking")
	}
}

func TestAttackMoveSystem(t *testing.T) {
	tw := newTestWorld()
	cfg := testCombatConfig()
	diving := tw.addBoid(r3.Vec{X: 3, Y: 20}, r3.Vec{}, true)
	landed := tw.addBoid(r3.Vec{X: 30, Y: 0.1}, r3.Vec{}, true)
	flocking := tw.addBoid(r3.Vec{Y: 20}, r3.Vec{X: 1}, false)

	sys := NewAttackMoveSystem(tw.w, cfg, 5)
	if n := sys.Update(); n != 1 {
		t.Errorf("ended %d attacks, want 1", n)
	}

	if v := tw.velMap.Get(diving).Vec(); r3.Norm(r3.Sub(v, r3.Vec{Y: -10})) > 1e-9 {
		t.Errorf("diving velocity = %v, want (0,-10,0)", v)
	}
	if !tw.boidMap.Get(diving).Attacking {
		t.Error("diving boid stopped attacking")
	}
	if tw.boidMap.Get(landed).Attacking {
		t.Error("far boid on the ground still attacking")
	}
	if v := tw.velMap.Get(flocking).Vec(); v != (r3.Vec{X: 1}) {
		t.Errorf("flocking boid velocity changed to %v", v)
	}
}

func TestMoveSystem(t *testing.T) {
	tw := newTestWorld()
	attacker := tw.addBoid(r3.Vec{}, r3.Vec{X: 2}, true)
	flocking := tw.addBoid(r3.Vec{}, r3.Vec{X: 2}, false)
	bullet := tw.addBullet(r3.Vec{}, r3.Vec{Y: 10}, 1, 1, 1)

	NewMoveSystem(tw.w).Update(0.5)

	if p := tw.posMap.Get(attacker).Vec(); p != (r3.Vec{X: 1}) {
		t.Errorf("attacker at %v, want (1,0,0)", p)
	}
	if p := tw.posMap.Get(flocking).Vec(); p != (r3.Vec{}) {
		t.Errorf("flocking boid moved to %v", p)
	}
	if p := tw.posMap.Get(bullet).Vec(); p != (r3.Vec{Y: 5}) {
		t.Errorf("bullet at %v, want (0,5,0)", p)
	}
}

func TestCollisionAndHealth(t *testing.T) {
	tw := newTestWorld()
	target := tw.addBoid(r3.Vec{X: 10}, r3.Vec{}, false)
	hit := tw.addBullet(r3.Vec{X: 10.5}, r3.Vec{}, 3, 1, 1)
	miss := tw.addBullet(r3.Vec{X: -10}, r3.Vec{}, 3, 1, 1)

	collisions := NewCollisionSystem(tw.w)
	if n := collisions.Update(tw.index(t)); n != 1 {
		t.Fatalf("hits = %d, want 1", n)
	}
	if tw.w.Alive(hit) {
		t.Error("spent bullet not removed")
	}
	if !tw.w.Alive(miss) {
		t.Error("missed bullet removed")
	}
	if hp := tw.hpMap.Get(target).Value; hp != 0 {
		t.Errorf("health = %v, want 0", hp)
	}

	if n := NewHealthSystem(tw.w).Update(); n != 1 {
		t.Errorf("killed %d, want 1", n)
	}
	if tw.w.Alive(target) {
		t.Error("dead boid not removed")
	}
}

func TestCollision_DeadBoidNotHitTwice(t *testing.T) {
	tw := newTestWorld()
	tw.addBoid(r3.Vec{}, r3.Vec{}, false)
	first := tw.addBullet(r3.Vec{X: 0.1}, r3.Vec{}, 5, 1, 1)
	second := tw.addBullet(r3.Vec{X: -0.1}, r3.Vec{}, 5, 1, 1)

	if n := NewCollisionSystem(tw.w).Update(tw.index(t)); n != 1 {
		t.Errorf("hits = %d, want 1", n)
	}
	if tw.w.Alive(first) == tw.w.Alive(second) {
		t.Error("expected exactly one bullet to survive")
	}
}

func TestPlayerContactSystem(t *testing.T) {
	tw := newTestWorld()
	touching := tw.addBoid(r3.Vec{X: 1}, r3.Vec{}, true)
	away := tw.addBoid(r3.Vec{X: 3}, r3.Vec{}, true)

	sys := NewPlayerContactSystem(tw.w, testCombatConfig())
	if n := sys.Update(tw.index(t)); n != 1 {
		t.Errorf("hits = %d, want 1", n)
	}
	if tw.w.Alive(touching) || !tw.w.Alive(away) {
		t.Error("wrong boid removed")
	}
}

func TestTurretSystem(t *testing.T) {
	tw := newTestWorld()
	tw.addBoid(r3.Vec{X: 3}, r3.Vec{}, false)
	tw.addBoid(r3.Vec{Z: 8}, r3.Vec{}, true)
	cfg := testCombatConfig()
	turret := NewTurretSystem(tw.w, cfg.Turret)
	idx := tw.index(t)

	if !turret.Update(idx, 0.1) {
		t.Fatal("turret did not fire")
	}
	if turret.Update(idx, 0.1) {
		t.Error("turret fired during cooldown")
	}

	bullets := ecs.NewFilter2[components.Velocity, components.Bullet](tw.w)
	query := bullets.Query()
	count := 0
	for query.Next() {
		vel, _ := query.Get()
		count++
		if r3.Norm(r3.Sub(vel.Vec(), r3.Vec{Z: 10})) > 1e-9 {
			t.Errorf("bullet velocity %v, want aimed at attacking boid (0,0,10)", vel.Vec())
		}
	}
	if count != 1 {
		t.Errorf("bullets = %d, want 1", count)
	}
}

func TestTurretSystem_Disabled(t *testing.T) {
	tw := newTestWorld()
	tw.addBoid(r3.Vec{X: 3}, r3.Vec{}, false)
	cfg := testCombatConfig()
	cfg.Turret.Enabled = false
	if NewTurretSystem(tw.w, cfg.Turret).Update(tw.index(t), 1) {
		t.Error("disabled turret fired")
	}
}
