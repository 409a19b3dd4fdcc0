// Package main provides CMA-ES tuning of the flock steering weights.
package main

import (
	"github.com/pthm-cable/swarm/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Column name in the optimizer log
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value

	field func(*config.Config) *float64
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
// Defaults match the embedded config.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "alignment", Path: "flock.alignment_weight", Min: 0, Max: 3, Default: 1,
				field: func(c *config.Config) *float64 { return &c.Flock.AlignmentWeight }},
			{Name: "cohesion", Path: "flock.cohesion_weight", Min: 0, Max: 3, Default: 1,
				field: func(c *config.Config) *float64 { return &c.Flock.CohesionWeight }},
			{Name: "separation", Path: "flock.separation_weight", Min: 0, Max: 5, Default: 1,
				field: func(c *config.Config) *float64 { return &c.Flock.SeparationWeight }},
			{Name: "boundary", Path: "boundary.weight", Min: 0, Max: 30, Default: 10,
				field: func(c *config.Config) *float64 { return &c.Boundary.Weight }},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped parameter values into cfg.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	for i, v := range pv.Clamp(values) {
		*pv.Specs[i].field(cfg) = v
	}
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = *spec.field(cfg)
	}
	return v
}
