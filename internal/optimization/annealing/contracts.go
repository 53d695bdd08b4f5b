package annealing

import "iter"

// Fitness returns the quality of a solution. Lower is better.
// It must be pure: repeated calls on an unmutated value return the same number.
type Fitness interface {
	Fitness() float64
}

// Neighbours produces and applies candidate moves of type N.
//
// NeighbourFitness may be a cheaper estimate than Fitness after the move, but
// the engine trusts it: after ApplyNeighbour the predicted value becomes the
// current fitness without calling Fitness again.
type Neighbours[N any] interface {
	// Neighbours returns a lazy, possibly infinite, sequence of moves.
	// Every call starts a fresh sequence.
	Neighbours() iter.Seq[N]

	// NeighbourFitness scores n without mutating the receiver.
	NeighbourFitness(n N) float64

	// ApplyNeighbour mutates the receiver in place.
	ApplyNeighbour(n N)
}

// Solution is the full capability set the engine needs from a candidate
// solution S with moves N. Clone must return a deep copy so that the best
// snapshot is unaffected by later moves.
type Solution[S any, N any] interface {
	Fitness
	Neighbours[N]
	Clone() S
}
