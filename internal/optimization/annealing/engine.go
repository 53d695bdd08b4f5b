package annealing

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/anneal/internal/optimization"
)

// cancelCheckInterval is how many neighbours a scan scores between context
// checks. Neighbour streams may be infinite, so the scan must check too.
const cancelCheckInterval = 64

// Config tunes a single Anneal call. The zero value runs until the schedule
// stops, ends on the first fruitless neighbour scan, and seeds its random
// source from the clock.
type Config struct {
	// Termination bounds the run. Nil means ScheduleDriven.
	Termination TerminationPolicy

	// OnExhausted decides what a scan that accepts nothing does.
	OnExhausted ExhaustionPolicy

	// StopOnZeroFitness ends the run as soon as the current fitness is exactly 0.
	StopOnZeroFitness bool

	// Rand supplies the uniform draws for the acceptance test.
	// If nil, one is created from Seed.
	Rand *rand.Rand

	// Seed for the random source; 0 seeds from the clock.
	Seed int64

	// Observer is notified of run progress. Optional.
	Observer Observer

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

func (c Config) random() *rand.Rand {
	if c.Rand != nil {
		return c.Rand
	}
	if c.Seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(c.Seed))
}

// Summary describes a finished run independently of the solution type.
type Summary struct {
	Reason StopReason
	// Iterations counts loop iterations, i.e. neighbour scans started.
	Iterations int
	// Accepted counts committed moves; Improving is the subset with a negative energy difference.
	Accepted  int
	Improving int
	// Evaluated counts calls to NeighbourFitness.
	Evaluated        int
	BestFitness      float64
	FinalFitness     float64
	FinalTemperature float64
	Duration         time.Duration
}

// Result is what Anneal returns. Best is a snapshot of the best solution seen;
// Final is the working solution when the run ended.
type Result[S any] struct {
	Best  S
	Final S
	Summary
}

// Anneal runs simulated annealing from initial, which it takes ownership of
// and mutates through ApplyNeighbour.
//
// Each iteration scans the neighbours of the current solution in order and
// commits the first one that improves the fitness or for which a fresh
// uniform draw in [0,1) falls below accept(diff, temperature). After a commit the
// schedule is advanced with the updated solution.
//
// A result is returned on every exit path once the arguments are valid. The
// only error after that point is ctx.Err(), returned together with the
// partial result.
func Anneal[S Solution[S, N], N any](
	ctx context.Context,
	initial S,
	schedule Schedule,
	accept AcceptanceFunc,
	cfg Config,
) (*Result[S], error) {
	if schedule == nil {
		return nil, optimization.Invalid(optimization.ErrInvalidConfig, "schedule is nil").WithOperation("anneal")
	}
	if accept == nil {
		return nil, optimization.Invalid(optimization.ErrInvalidConfig, "acceptance function is nil").WithOperation("anneal")
	}
	if cfg.Termination == nil {
		cfg.Termination = ScheduleDriven{}
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := cfg.random()
	limit, capped := cfg.Termination.limit()

	start := time.Now()
	current := initial
	currentFitness := current.Fitness()

	res := &Result[S]{Best: current.Clone()}
	res.BestFitness = currentFitness

	observer.OnStart(currentFitness, schedule.Temperature())
	logger.Debug("annealing started",
		zap.Float64("fitness", currentFitness),
		zap.Float64("temperature", schedule.Temperature()),
		zap.Stringer("termination", cfg.Termination),
		zap.Stringer("on_exhausted", cfg.OnExhausted))

	finish := func(reason StopReason) *Result[S] {
		res.Reason = reason
		res.Final = current
		res.FinalFitness = currentFitness
		res.FinalTemperature = schedule.Temperature()
		res.Duration = time.Since(start)
		observer.OnFinish(res.Summary)
		logger.Debug("annealing finished",
			zap.String("reason", string(reason)),
			zap.Int("iterations", res.Iterations),
			zap.Int("accepted", res.Accepted),
			zap.Float64("best_fitness", res.BestFitness),
			zap.Duration("duration", res.Duration))
		return res
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(Cancelled), err
		}
		if cfg.StopOnZeroFitness && currentFitness == 0 {
			return finish(ZeroFitness), nil
		}
		if schedule.Stop() {
			return finish(ScheduleStopped), nil
		}
		if capped && uint64(res.Iterations) >= limit {
			return finish(IterationLimit), nil
		}
		res.Iterations++

		temperature := schedule.Temperature()
		var (
			chosen    N
			predicted float64
			found     bool
			cancelled error
		)
		for n := range current.Neighbours() {
			if res.Evaluated%cancelCheckInterval == 0 {
				if cancelled = ctx.Err(); cancelled != nil {
					break
				}
			}
			fitness := current.NeighbourFitness(n)
			res.Evaluated++
			diff := fitness - currentFitness
			if diff < 0 || rng.Float64() < accept(diff, temperature) {
				chosen, predicted, found = n, fitness, true
				break
			}
			observer.OnReject(diff, temperature)
		}

		if cancelled != nil {
			return finish(Cancelled), cancelled
		}
		if !found {
			if cfg.OnExhausted == ContinueOnExhaustion {
				schedule = schedule.Update(current)
				continue
			}
			return finish(NeighboursExhausted), nil
		}

		diff := predicted - currentFitness
		current.ApplyNeighbour(chosen)
		schedule = schedule.Update(current)
		currentFitness = predicted

		res.Accepted++
		if diff < 0 {
			res.Improving++
		}
		newBest := currentFitness < res.BestFitness
		if newBest {
			res.Best = current.Clone()
			res.BestFitness = currentFitness
		}

		observer.OnMove(Move{
			Iteration:   res.Iterations,
			Fitness:     currentFitness,
			EnergyDiff:  diff,
			Temperature: schedule.Temperature(),
			Improving:   diff < 0,
			NewBest:     newBest,
		})
		if newBest {
			logger.Debug("new best",
				zap.Int("iteration", res.Iterations),
				zap.Float64("fitness", currentFitness),
				zap.Float64("temperature", temperature))
		}
	}
}
