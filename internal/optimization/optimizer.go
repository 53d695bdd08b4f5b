package optimization

import (
	"context"
)

// Optimizer defines the interface for optimization runs hosted by the server and CLI.
type Optimizer interface {
	// Optimize runs the optimization process until it terminates or ctx is done.
	Optimize(ctx context.Context) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the history of accepted moves
	GetHistory() []Evaluation

	// Stop gracefully stops the optimization process
	Stop()
}

// ObjectiveFunction scores a point in a continuous search space. Lower is better.
type ObjectiveFunction func([]float64) float64

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64 `json:"parameters"`
	Value      float64   `json:"value"`
}

// Evaluation is a single accepted move of a run.
type Evaluation struct {
	Iteration   int       `json:"iteration"`
	Solution    *Solution `json:"solution"`
	Temperature float64   `json:"temperature"`
	Improving   bool      `json:"improving"`
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution  *Solution    `json:"best_solution"`
	FinalSolution *Solution    `json:"final_solution"`
	History       []Evaluation `json:"history,omitempty"`
	Iterations    int          `json:"iterations"`
	Evaluated     int          `json:"evaluated"`
	StopReason    string       `json:"stop_reason"`
	// Summary statistics over the fitness of accepted moves.
	MeanAccepted   float64 `json:"mean_accepted"`
	StdDevAccepted float64 `json:"stddev_accepted"`
	// Refined is set when a local search improved on the annealed best.
	Refined bool `json:"refined,omitempty"`
}
