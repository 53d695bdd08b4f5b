package problems

import (
	"iter"
	"math"
	"math/rand"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/anneal/internal/optimization"
)

// Sphere is sum(x_i^2), minimum 0 at the origin.
func Sphere(x []float64) float64 {
	return floats.Dot(x, x)
}

// Rastrigin is 10n + sum(x_i^2 - 10cos(2*pi*x_i)), minimum 0 at the origin
// with a regular grid of local minima around it.
func Rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// ObjectiveByName resolves "sphere" or "rastrigin".
func ObjectiveByName(name string) (optimization.ObjectiveFunction, error) {
	switch strings.ToLower(name) {
	case "sphere":
		return Sphere, nil
	case "rastrigin":
		return Rastrigin, nil
	default:
		return nil, optimization.Invalid(optimization.ErrUnknownProblem, "objective %q", name).WithComponent("problems")
	}
}

// Step moves a single coordinate to a new value.
type Step struct {
	Index int
	Value float64
}

// Vector is a bounded continuous problem. Each neighbour scan proposes
// Samples single-coordinate Gaussian steps, so the sequence is finite.
type Vector struct {
	X         []float64
	Bounds    [][2]float64
	Objective optimization.ObjectiveFunction
	// Sigma is the step standard deviation as a fraction of each dimension's width.
	Sigma   float64
	Samples int

	rng     *rand.Rand
	scratch []float64
}

// NewVector creates a Vector at a uniformly random point inside bounds.
func NewVector(objective optimization.ObjectiveFunction, bounds [][2]float64, sigma float64, samples int, rng *rand.Rand) (*Vector, error) {
	if objective == nil {
		return nil, optimization.Invalid(optimization.ErrInvalidConfig, "objective is nil").WithComponent("vector")
	}
	if len(bounds) == 0 {
		return nil, optimization.Invalid(optimization.ErrInvalidConfig, "bounds are required").WithComponent("vector")
	}
	for i, b := range bounds {
		if !(b[0] < b[1]) {
			return nil, optimization.Invalid(optimization.ErrInvalidConfig,
				"bound %d: min %v must be below max %v", i, b[0], b[1]).WithComponent("vector")
		}
	}
	if !(sigma > 0) {
		return nil, optimization.Invalid(optimization.ErrInvalidConfig, "sigma must be positive, got %v", sigma).WithComponent("vector")
	}
	if samples < 1 {
		return nil, optimization.Invalid(optimization.ErrInvalidConfig, "samples must be at least 1, got %d", samples).WithComponent("vector")
	}

	x := make([]float64, len(bounds))
	for i, b := range bounds {
		x[i] = b[0] + rng.Float64()*(b[1]-b[0])
	}
	return &Vector{
		X:         x,
		Bounds:    slices.Clone(bounds),
		Objective: objective,
		Sigma:     sigma,
		Samples:   samples,
		rng:       rng,
	}, nil
}

func (v *Vector) Fitness() float64 { return v.Objective(v.X) }

func (v *Vector) Neighbours() iter.Seq[Step] {
	return func(yield func(Step) bool) {
		for i := 0; i < v.Samples; i++ {
			dim := v.rng.Intn(len(v.X))
			lo, hi := v.Bounds[dim][0], v.Bounds[dim][1]
			normal := distuv.Normal{Mu: v.X[dim], Sigma: v.Sigma * (hi - lo)}
			value := normal.Quantile(openUnit(v.rng))
			if !yield(Step{Index: dim, Value: math.Max(lo, math.Min(value, hi))}) {
				return
			}
		}
	}
}

// NeighbourFitness evaluates the objective at the stepped point using a
// scratch buffer, leaving X untouched.
func (v *Vector) NeighbourFitness(s Step) float64 {
	if len(v.scratch) != len(v.X) {
		v.scratch = make([]float64, len(v.X))
	}
	copy(v.scratch, v.X)
	v.scratch[s.Index] = s.Value
	return v.Objective(v.scratch)
}

func (v *Vector) ApplyNeighbour(s Step) { v.X[s.Index] = s.Value }

func (v *Vector) Clone() *Vector {
	return &Vector{
		X:         slices.Clone(v.X),
		Bounds:    v.Bounds,
		Objective: v.Objective,
		Sigma:     v.Sigma,
		Samples:   v.Samples,
		rng:       v.rng,
	}
}

// Parameters returns a copy of the current point.
func (v *Vector) Parameters() []float64 { return slices.Clone(v.X) }

// openUnit draws from (0,1) so that quantiles stay finite.
func openUnit(rng *rand.Rand) float64 {
	for {
		if u := rng.Float64(); u > 0 {
			return u
		}
	}
}
