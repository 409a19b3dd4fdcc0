package telemetry

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeSpeedStats(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	mean, std, p10, p50, p90 := ComputeSpeedStats(values)

	if math.Abs(mean-5.5) > 0.001 {
		t.Errorf("mean = %v, want 5.5", mean)
	}
	// Sample standard deviation of 1..10
	if math.Abs(std-3.0277) > 0.001 {
		t.Errorf("std = %v, want ~3.0277", std)
	}
	if math.Abs(p10-1.9) > 0.001 || math.Abs(p50-5.5) > 0.001 || math.Abs(p90-9.1) > 0.001 {
		t.Errorf("percentiles = %v %v %v, want 1.9 5.5 9.1", p10, p50, p90)
	}

	// Input must not be reordered
	shuffled := []float64{3, 1, 2}
	ComputeSpeedStats(shuffled)
	if shuffled[0] != 3 || shuffled[1] != 1 {
		t.Errorf("input reordered: %v", shuffled)
	}
}

func TestComputeSpeedStatsEdgeCases(t *testing.T) {
	mean, std, p10, p50, p90 := ComputeSpeedStats(nil)
	if mean != 0 || std != 0 || p10 != 0 || p50 != 0 || p90 != 0 {
		t.Error("empty slice should return all zeros")
	}

	mean, std, _, p50, _ = ComputeSpeedStats([]float64{4})
	if mean != 4 || std != 0 || p50 != 4 {
		t.Errorf("single value stats = %v %v %v", mean, std, p50)
	}
}

func TestPolarization(t *testing.T) {
	tests := []struct {
		name     string
		headings []r3.Vec
		want     float64
	}{
		{"empty", nil, 0},
		{"aligned", []r3.Vec{{X: 1}, {X: 1}, {X: 1}}, 1},
		{"opposed", []r3.Vec{{X: 1}, {X: -1}}, 0},
		{"orthogonal", []r3.Vec{{X: 1}, {Y: 1}}, math.Sqrt2 / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Polarization(tt.headings); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Polarization = %v, want %v", got, tt.want)
			}
		})
	}
}
