// Package annealing implements a generic simulated-annealing search.
//
// A caller supplies three things: a solution type satisfying Solution, a
// cooling Schedule, and an AcceptanceFunc. Anneal then repeatedly scans the
// current solution's neighbours, moving to the first one that either improves
// the fitness or passes the stochastic acceptance test, and cools the schedule
// after every committed move.
//
// Basic usage:
//
//	schedule, err := annealing.NewGeometric(800, 0.99, 0.001)
//	if err != nil {
//	    return err
//	}
//	res, err := annealing.Anneal[*problems.Formula, int](ctx, start, schedule,
//	    annealing.Boltzmann(1), annealing.Config{Seed: 42})
//
// Fitness is minimised. Problems that maximise a score negate it.
package annealing
