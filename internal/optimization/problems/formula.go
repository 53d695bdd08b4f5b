package problems

import (
	"iter"
	"math/rand"
)

// FormulaMax is the largest x the cubic formula is searched over.
const FormulaMax = 16

// Formula searches x in [0, FormulaMax] for the maximum of
// f(x) = x^3 - 60x^2 + 900x + 100. Fitness is -f(x) so that minimising it
// maximises f. The maximum is f(10) = 4100.
type Formula struct {
	X   int
	rng *rand.Rand
}

// NewFormula returns a Formula at a random x. rng drives both the start and
// the neighbour stream.
func NewFormula(rng *rand.Rand) *Formula {
	return &Formula{X: rng.Intn(FormulaMax + 1), rng: rng}
}

// Value is the formula itself, f(x).
func Value(x int) float64 {
	v := float64(x)
	return v*v*v - 60*v*v + 900*v + 100
}

func (f *Formula) Fitness() float64 { return -Value(f.X) }

// Neighbours is an endless stream of uniformly random x values.
func (f *Formula) Neighbours() iter.Seq[int] {
	return func(yield func(int) bool) {
		for yield(f.rng.Intn(FormulaMax + 1)) {
		}
	}
}

func (f *Formula) NeighbourFitness(x int) float64 { return -Value(x) }

func (f *Formula) ApplyNeighbour(x int) { f.X = x }

// Clone shares the random source, which is not part of the solution.
func (f *Formula) Clone() *Formula {
	return &Formula{X: f.X, rng: f.rng}
}

// Parameters reports the solution as a single-element vector.
func (f *Formula) Parameters() []float64 { return []float64{float64(f.X)} }
