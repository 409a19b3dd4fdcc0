package components

// Health holds an entity's remaining hit points. Boids are removed when
// Value drops to zero.
type Health struct {
	Value float64
}

// Bullet is a projectile fired by the turret.
type Bullet struct {
	Damage float64
	Radius float64 // hit test radius
}
