package annealer

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/anneal/internal/optimization"
)

// refine polishes the best vector solution with a Nelder-Mead local search
// kept inside the problem bounds. The result is only replaced when the
// polished point is strictly better.
func (a *Annealer) refine(res *optimization.OptimizationResult) {
	bounds := a.vector.Bounds
	objective := a.vector.Objective

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return objective(clampTo(bounds, x))
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 20_000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
	}
	method := &optimize.NelderMead{SimplexSize: 0.05}

	result, err := optimize.Minimize(problem, res.BestSolution.Parameters, settings, method)
	if err != nil || result == nil {
		a.logger.Debug("refinement failed", zap.Error(err))
		return
	}

	x := clampTo(bounds, result.X)
	value := objective(x)
	if !(value < res.BestSolution.Value) {
		return
	}

	a.logger.Debug("refinement improved best",
		zap.Float64("before", res.BestSolution.Value),
		zap.Float64("after", value),
		zap.Int("evaluations", result.Stats.FuncEvaluations))

	res.BestSolution = &optimization.Solution{Parameters: x, Value: value}
	res.Refined = true

	a.mu.Lock()
	a.best = res.BestSolution
	a.progress.BestFitness = value
	a.mu.Unlock()
}

// clampTo returns a copy of x with every coordinate inside its bound.
func clampTo(bounds [][2]float64, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(bounds[i][0], math.Min(v, bounds[i][1]))
	}
	return out
}
