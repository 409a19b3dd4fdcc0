package spatial

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewGrid_RejectsDegenerateCellSize(t *testing.T) {
	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := NewGrid(size); !errors.Is(err, ErrInvalidCellSize) {
			t.Errorf("NewGrid(%v) error = %v, want ErrInvalidCellSize", size, err)
		}
	}
}

func TestGrid_CellOf(t *testing.T) {
	g, err := NewGrid(2)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		pos  r3.Vec
		want Cell
	}{
		{"origin", r3.Vec{}, Cell{0, 0, 0}},
		{"inside first cell", r3.Vec{X: 1.9, Y: 0.1, Z: 1}, Cell{0, 0, 0}},
		{"upper boundary goes up", r3.Vec{X: 2, Y: 4, Z: 6}, Cell{1, 2, 3}},
		{"negative floors down", r3.Vec{X: -0.1, Y: -2, Z: -2.1}, Cell{-1, -1, -2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.CellOf(tc.pos); got != tc.want {
				t.Errorf("CellOf(%v) = %v, want %v", tc.pos, got, tc.want)
			}
		})
	}
}

func TestGrid_CellOfSaturates(t *testing.T) {
	g, err := NewGrid(1)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		v    float64
		want int32
	}{
		{"far positive", 1e300, math.MaxInt32},
		{"just past max", float64(math.MaxInt32) + 10, math.MaxInt32},
		{"far negative", -1e300, math.MinInt32},
		{"just past min", float64(math.MinInt32) - 10, math.MinInt32},
		{"NaN", math.NaN(), math.MinInt32},
		{"in range", -2.5, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := g.CellOf(r3.Vec{X: tt.v, Y: tt.v, Z: tt.v})
			if c.X != tt.want || c.Y != tt.want || c.Z != tt.want {
				t.Errorf("CellOf(%v) = %+v, want %d on every axis", tt.v, c, tt.want)
			}
		})
	}
}

func TestGrid_HashIsDeterministic(t *testing.T) {
	g, _ := NewGrid(5)
	p := r3.Vec{X: 12.5, Y: -3, Z: 7}
	if g.HashOf(p) != g.HashOf(p) {
		t.Fatal("hash differs between calls")
	}
	if g.HashOf(p) != HashCell(Cell{2, -1, 1}) {
		t.Errorf("HashOf(%v) does not match HashCell of its cell", p)
	}
}

func TestHashCell_KnownCollision(t *testing.T) {
	// Two diagonal neighbors that mix to the same 32-bit value.
	a := Cell{X: 131363, Y: -146890, Z: 0}
	b := Cell{X: 131364, Y: -146889, Z: 0}
	if HashCell(a) != HashCell(b) {
		t.Fatalf("expected collision, got %d and %d", HashCell(a), HashCell(b))
	}
	if HashCell(a) != -761079235 {
		t.Errorf("HashCell(%v) = %d, want -761079235", a, HashCell(a))
	}
}

func TestGrid_Reach(t *testing.T) {
	g, _ := NewGrid(10)
	tests := []struct {
		radius float64
		want   int
	}{
		{0, 1},
		{5, 1},
		{10, 1},
		{10.5, 2},
		{30, 3},
	}
	for _, tc := range tests {
		if got := g.Reach(tc.radius); got != tc.want {
			t.Errorf("Reach(%v) = %d, want %d", tc.radius, got, tc.want)
		}
	}
}
