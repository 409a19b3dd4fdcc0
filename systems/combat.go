package systems

import (
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
)

// groundReach is the height above ground below which the dive flattens out
// completely.
const groundReach = 5.0

// groundTolerance is how close to the ground a boid must be before its
// attack can reset.
const groundTolerance = 0.5

// AttackRangeSystem switches boids near the player into attack mode.
type AttackRangeSystem struct {
	player  r3.Vec
	radius  float64
	chance  float64
	rng     *rand.Rand
	boidMap *ecs.Map1[components.Boid]
	found   []Neighbor
}

// NewAttackRangeSystem creates an attack range system.
func NewAttackRangeSystem(w *ecs.World, cfg config.CombatConfig, rng *rand.Rand) *AttackRangeSystem {
	return &AttackRangeSystem{
		player:  cfg.PlayerPosition.Vec(),
		radius:  cfg.AttackRange,
		chance:  cfg.AttackChance,
		rng:     rng,
		boidMap: ecs.NewMap1[components.Boid](w),
	}
}

// Update rolls the attack chance for every boid in range. It returns the
// number of boids that started an attack.
func (s *AttackRangeSystem) Update(index *EntityIndex) int {
	s.found = index.QueryRadiusInto(s.found[:0], s.player, s.radius, 0)

	started := 0
	for _, n := range s.found {
		boid := s.boidMap.Get(n.E)
		if boid == nil || boid.Attacking {
			continue
		}
		if s.rng.Float64() < s.chance {
			boid.Attacking = true
			started++
		}
	}
	return started
}

// AttackMoveSystem steers attacking boids in a dive that curves from the
// ground toward the player.
type AttackMoveSystem struct {
	filter        *ecs.Filter3[components.Position, components.Velocity, components.Boid]
	player        r3.Vec
	ground        float64
	speed         float64
	resetDistance float64
}

// NewAttackMoveSystem creates an attack move system. moveSpeed is the
// flocking speed cap; attacks fly at speed_mul times that.
func NewAttackMoveSystem(w *ecs.World, cfg config.CombatConfig, moveSpeed float64) *AttackMoveSystem {
	return &AttackMoveSystem{
		filter:        ecs.NewFilter3[components.Position, components.Velocity, components.Boid](w),
		player:        cfg.PlayerPosition.Vec(),
		ground:        cfg.GroundHeight,
		speed:         moveSpeed * cfg.AttackSpeedMul,
		resetDistance: cfg.ResetDistance,
	}
}

// Update sets attacking boids' velocities. It returns the number of attacks
// that ended this tick.
func (s *AttackMoveSystem) Update() int {
	ended := 0
	query := s.filter.Query()
	for query.Next() {
		pos, vel, boid := query.Get()
		if !boid.Attacking {
			continue
		}

		p := pos.Vec()
		dir, groundDist := DiveDirection(p, s.player, s.ground)
		vel.Set(r3.Scale(s.speed, dir))

		if r3.Norm(r3.Sub(p, s.player)) > s.resetDistance && groundDist < groundTolerance {
			boid.Attacking = false
			ended++
		}
	}
	return ended
}

// DiveDirection blends the direction straight down to the ground with the
// direction to the player. High above the ground the boid drops; within
// groundReach of it the boid turns toward the player. It also returns the
// height above ground.
func DiveDirection(p, player r3.Vec, ground float64) (dir r3.Vec, groundDist float64) {
	groundTarget := r3.Vec{X: p.X, Y: ground, Z: p.Z}
	toGround := unitOrZero(r3.Sub(groundTarget, p))
	toPlayer := unitOrZero(r3.Sub(player, p))

	groundDist = math.Abs(p.Y - ground)
	influence := math.Min(math.Max(groundDist/groundReach, 0), 1)
	t := 1 - influence
	return r3.Add(toGround, r3.Scale(t, r3.Sub(toPlayer, toGround))), groundDist
}

// TurretSystem fires bullets at boids. Attacking boids are preferred.
type TurretSystem struct {
	cfg      config.TurretConfig
	position r3.Vec
	cooldown float64

	boidMap *ecs.Map1[components.Boid]
	bullets *ecs.Map4[components.Position, components.Velocity, components.Bullet, components.Lifetime]
}

// NewTurretSystem creates a turret system.
func NewTurretSystem(w *ecs.World, cfg config.TurretConfig) *TurretSystem {
	return &TurretSystem{
		cfg:      cfg,
		position: cfg.Position.Vec(),
		boidMap:  ecs.NewMap1[components.Boid](w),
		bullets:  ecs.NewMap4[components.Position, components.Velocity, components.Bullet, components.Lifetime](w),
	}
}

// Update advances the fire timer and fires at most one bullet. It returns
// true if a bullet was fired.
func (s *TurretSystem) Update(index *EntityIndex, dt float64) bool {
	if !s.cfg.Enabled {
		return false
	}
	s.cooldown -= dt
	if s.cooldown > 0 {
		return false
	}

	target, ok := index.Nearest(s.position, s.cfg.Range, func(e ecs.Entity) bool {
		b := s.boidMap.Get(e)
		return b != nil && b.Attacking
	})
	if !ok {
		target, ok = index.Nearest(s.position, s.cfg.Range, nil)
	}
	if !ok {
		return false
	}
	s.cooldown = s.cfg.FireInterval

	s.Fire(target.Pos)
	return true
}

// Fire spawns a bullet aimed at target.
func (s *TurretSystem) Fire(target r3.Vec) ecs.Entity {
	dir := unitOrZero(r3.Sub(target, s.position))

	var pos components.Position
	var vel components.Velocity
	pos.Set(s.position)
	vel.Set(r3.Scale(s.cfg.BulletSpeed, dir))
	bullet := components.Bullet{Damage: s.cfg.BulletDamage, Radius: s.cfg.BulletRadius}
	life := components.Lifetime{Remaining: s.cfg.BulletLifetime}
	return s.bullets.NewEntity(&pos, &vel, &bullet, &life)
}

// CollisionSystem applies bullet hits to boids.
type CollisionSystem struct {
	world     *ecs.World
	filter    *ecs.Filter2[components.Position, components.Bullet]
	healthMap *ecs.Map1[components.Health]
	found     []Neighbor
	spent     []ecs.Entity
}

// NewCollisionSystem creates a collision system.
func NewCollisionSystem(w *ecs.World) *CollisionSystem {
	return &CollisionSystem{
		world:     w,
		filter:    ecs.NewFilter2[components.Position, components.Bullet](w),
		healthMap: ecs.NewMap1[components.Health](w),
	}
}

// Update tests every bullet against the boid index. The first live boid
// within a bullet's radius takes its damage and the bullet is destroyed.
// It returns the number of hits.
func (s *CollisionSystem) Update(index *EntityIndex) int {
	// First pass: resolve hits (no structural changes during the query)
	s.spent = s.spent[:0]
	query := s.filter.Query()
	for query.Next() {
		pos, bullet := query.Get()
		s.found = index.QueryRadiusInto(s.found[:0], pos.Vec(), bullet.Radius, 0)
		for _, n := range s.found {
			health := s.healthMap.Get(n.E)
			if health == nil || health.Value <= 0 {
				continue
			}
			health.Value -= bullet.Damage
			s.spent = append(s.spent, query.Entity())
			break
		}
	}

	// Second pass: remove spent bullets
	for _, e := range s.spent {
		s.world.RemoveEntity(e)
	}
	return len(s.spent)
}

// PlayerContactSystem destroys boids that reach the player.
type PlayerContactSystem struct {
	world  *ecs.World
	player r3.Vec
	radius float64
	found  []Neighbor
}

// NewPlayerContactSystem creates a player contact system.
func NewPlayerContactSystem(w *ecs.World, cfg config.CombatConfig) *PlayerContactSystem {
	return &PlayerContactSystem{
		world:  w,
		player: cfg.PlayerPosition.Vec(),
		radius: cfg.PlayerHitRadius,
	}
}

// Update removes every boid within the hit radius. It returns the number
// of boids that reached the player.
func (s *PlayerContactSystem) Update(index *EntityIndex) int {
	s.found = index.QueryRadiusInto(s.found[:0], s.player, s.radius, 0)
	hits := 0
	for _, n := range s.found {
		if !s.world.Alive(n.E) {
			continue
		}
		s.world.RemoveEntity(n.E)
		hits++
	}
	return hits
}

func unitOrZero(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n < 1e-12 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}
