// Package annealer hosts annealing runs described by a config.RunConfig
// behind the optimization.Optimizer interface.
package annealer

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/anneal/internal/config"
	"github.com/copyleftdev/anneal/internal/optimization"
	"github.com/copyleftdev/anneal/internal/optimization/annealing"
	"github.com/copyleftdev/anneal/internal/optimization/problems"
)

// ErrAlreadyStarted is returned by Optimize on an Annealer that has run before.
var ErrAlreadyStarted = errors.New("annealer: run already started")

// plannedLimit bounds the schedule walk used to estimate run length.
const plannedLimit = 10_000_000

// Options are the host-side knobs that do not belong in a RunConfig.
type Options struct {
	// Logger receives engine and run logs. Nil disables logging.
	Logger *zap.Logger
	// Observer is notified alongside the history recorder, e.g. a metrics.Collector run.
	Observer annealing.Observer
	// HistoryLimit caps the accepted moves kept; older ones are dropped. 0 keeps all.
	HistoryLimit int
	// DefaultSeed is used when the RunConfig has no seed.
	DefaultSeed int64
}

// Progress is a snapshot of a run in flight.
type Progress struct {
	Iteration      int     `json:"iteration"`
	Accepted       int     `json:"accepted"`
	Temperature    float64 `json:"temperature"`
	CurrentFitness float64 `json:"current_fitness"`
	BestFitness    float64 `json:"best_fitness"`
	// Updates is how many times the schedule has cooled; Planned is how many
	// it needs in total to stop.
	Updates int64 `json:"updates"`
	Planned int   `json:"planned"`
}

// Fraction reports how far the schedule has cooled, in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Planned <= 0 {
		return 1
	}
	f := float64(p.Updates) / float64(p.Planned)
	if f > 1 {
		return 1
	}
	return f
}

// Annealer runs one configured annealing problem. It is single use.
type Annealer struct {
	run  config.RunConfig
	opts Options

	logger      *zap.Logger
	rng         *rand.Rand
	schedule    annealing.Schedule
	accept      annealing.AcceptanceFunc
	termination annealing.TerminationPolicy
	exhaustion  annealing.ExhaustionPolicy
	planned     int
	updates     atomic.Int64

	// exactly one of formula and vector is set
	formula *problems.Formula
	vector  *problems.Vector

	started atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
	best     *optimization.Solution
	history  []optimization.Evaluation
	accepted []float64
	progress Progress
}

// New validates rc and builds the problem, schedule and acceptance function.
func New(rc config.RunConfig, opts Options) (*Annealer, error) {
	rc.ApplyDefaults()
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	a := &Annealer{run: rc, opts: opts, logger: opts.Logger}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	seed := rc.Seed
	if seed == 0 {
		seed = opts.DefaultSeed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a.rng = rand.New(rand.NewSource(seed))

	var err error
	if a.schedule, err = NewSchedule(rc.Schedule); err != nil {
		return nil, err
	}
	if a.accept, err = annealing.AcceptanceByName(rc.Acceptance.Name, rc.Acceptance.Constant); err != nil {
		return nil, err
	}

	a.termination = annealing.ScheduleDriven{}
	limit := plannedLimit
	if rc.Termination.MaxIterations > 0 {
		a.termination = annealing.MaxIterations{N: rc.Termination.MaxIterations}
		if rc.Termination.MaxIterations < uint64(limit) {
			limit = int(rc.Termination.MaxIterations)
		}
	}
	if rc.Termination.OnExhausted == "continue" {
		a.exhaustion = annealing.ContinueOnExhaustion
	}
	a.planned = annealing.Remaining(a.schedule, limit)

	switch rc.Problem.Name {
	case "formula":
		a.formula = problems.NewFormula(a.rng)
	default:
		objective, err := problems.ObjectiveByName(rc.Problem.Name)
		if err != nil {
			return nil, err
		}
		a.vector, err = problems.NewVector(objective, rc.Problem.BoundsPairs(), rc.Problem.Sigma, rc.Problem.Samples, a.rng)
		if err != nil {
			return nil, err
		}
	}

	a.progress = Progress{Temperature: a.schedule.Temperature(), Planned: a.planned}
	return a, nil
}

// NewSchedule builds the cooling schedule sc describes.
func NewSchedule(sc config.ScheduleConfig) (annealing.Schedule, error) {
	switch strings.ToLower(sc.Kind) {
	case "linear":
		return annealing.NewLinear(sc.Initial, sc.Constant, sc.Stopping)
	case "", "geometric":
		return annealing.NewGeometric(sc.Initial, sc.Constant, sc.Stopping)
	default:
		return nil, optimization.Invalid(optimization.ErrInvalidSchedule, "unknown schedule kind %q", sc.Kind).WithComponent("annealer")
	}
}

// Config returns the run configuration with defaults applied.
func (a *Annealer) Config() config.RunConfig {
	return a.run
}

// Optimize runs the annealing loop. A cancelled run returns its partial
// result together with the context error.
func (a *Annealer) Optimize(ctx context.Context) (*optimization.OptimizationResult, error) {
	if !a.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		return a.dispatch(ctx)
	}
	ctx, a.cancel = context.WithCancel(ctx)
	cancel := a.cancel
	a.mu.Unlock()
	defer cancel()

	return a.dispatch(ctx)
}

func (a *Annealer) dispatch(ctx context.Context) (*optimization.OptimizationResult, error) {
	if a.formula != nil {
		return solve[*problems.Formula, int](ctx, a, a.formula, (*problems.Formula).Parameters)
	}
	res, err := solve[*problems.Vector, problems.Step](ctx, a, a.vector, (*problems.Vector).Parameters)
	if err == nil && a.run.Problem.Refine {
		a.refine(res)
	}
	return res, err
}

func solve[S annealing.Solution[S, N], N any](
	ctx context.Context,
	a *Annealer,
	initial S,
	params func(S) []float64,
) (*optimization.OptimizationResult, error) {
	observers := annealing.Observers{&recorder{a: a, params: func() []float64 { return params(initial) }}}
	if a.opts.Observer != nil {
		observers = append(observers, a.opts.Observer)
	}

	a.logger.Info("run started",
		zap.String("problem", a.run.Problem.Name),
		zap.String("schedule", a.run.Schedule.Kind),
		zap.String("acceptance", a.run.Acceptance.Name),
		zap.Int("planned_updates", a.planned))

	res, err := annealing.Anneal[S, N](ctx, initial, countingSchedule{a.schedule, &a.updates}, a.accept, annealing.Config{
		Termination:       a.termination,
		OnExhausted:       a.exhaustion,
		StopOnZeroFitness: a.run.Termination.StopOnZeroFitness,
		Rand:              a.rng,
		Observer:          observers,
		Logger:            a.logger,
	})
	if res == nil {
		return nil, err
	}

	a.mu.Lock()
	a.best = &optimization.Solution{Parameters: params(res.Best), Value: res.BestFitness}
	out := &optimization.OptimizationResult{
		BestSolution:  a.best,
		FinalSolution: &optimization.Solution{Parameters: params(res.Final), Value: res.FinalFitness},
		History:       append([]optimization.Evaluation(nil), a.history...),
		Iterations:    res.Iterations,
		Evaluated:     res.Evaluated,
		StopReason:    string(res.Reason),
	}
	out.MeanAccepted, out.StdDevAccepted = summarise(a.accepted)
	a.mu.Unlock()

	a.logger.Info("run finished",
		zap.String("reason", string(res.Reason)),
		zap.Int("iterations", res.Iterations),
		zap.Int("accepted", res.Accepted),
		zap.Float64("best_fitness", res.BestFitness),
		zap.Duration("duration", res.Duration))
	return out, err
}

// summarise returns the mean and sample standard deviation of xs, with 0 in
// place of undefined values so the result stays JSON encodable.
func summarise(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean = stat.Mean(xs, nil)
	if len(xs) > 1 {
		stddev = stat.StdDev(xs, nil)
	}
	return mean, stddev
}

// GetBestSolution returns the best solution found so far, or nil before the first move.
func (a *Annealer) GetBestSolution() *optimization.Solution {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.best == nil {
		return nil
	}
	return &optimization.Solution{Parameters: append([]float64(nil), a.best.Parameters...), Value: a.best.Value}
}

// GetHistory returns a copy of the accepted moves recorded so far.
func (a *Annealer) GetHistory() []optimization.Evaluation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]optimization.Evaluation(nil), a.history...)
}

// Progress returns a snapshot of the run.
func (a *Annealer) Progress() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.progress
	p.Updates = a.updates.Load()
	return p
}

// Stop cancels the run. Calling it before Optimize makes Optimize return
// immediately with a cancelled result.
func (a *Annealer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.cancel != nil {
		a.cancel()
	}
}

// countingSchedule counts updates of the wrapped schedule.
type countingSchedule struct {
	annealing.Schedule
	n *atomic.Int64
}

func (c countingSchedule) Update(f annealing.Fitness) annealing.Schedule {
	c.n.Add(1)
	return countingSchedule{c.Schedule.Update(f), c.n}
}

// recorder keeps the history and progress of a run. It is called on the
// goroutine running the engine, after the move has been applied.
type recorder struct {
	annealing.NopObserver
	a      *Annealer
	params func() []float64
}

func (r *recorder) OnStart(fitness, temperature float64) {
	a := r.a
	a.mu.Lock()
	defer a.mu.Unlock()
	a.best = &optimization.Solution{Parameters: r.params(), Value: fitness}
	a.progress.CurrentFitness = fitness
	a.progress.BestFitness = fitness
	a.progress.Temperature = temperature
}

func (r *recorder) OnMove(m annealing.Move) {
	a := r.a
	params := r.params()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress.Iteration = m.Iteration
	a.progress.Accepted++
	a.progress.Temperature = m.Temperature
	a.progress.CurrentFitness = m.Fitness
	if m.NewBest {
		a.best = &optimization.Solution{Parameters: params, Value: m.Fitness}
		a.progress.BestFitness = m.Fitness
	}

	a.accepted = append(a.accepted, m.Fitness)
	a.history = append(a.history, optimization.Evaluation{
		Iteration:   m.Iteration,
		Solution:    &optimization.Solution{Parameters: params, Value: m.Fitness},
		Temperature: m.Temperature,
		Improving:   m.Improving,
	})
	// Reslicing drops the oldest entry; append reallocates once capacity runs out.
	if limit := a.opts.HistoryLimit; limit > 0 && len(a.history) > limit {
		a.history = a.history[len(a.history)-limit:]
	}
}

func (r *recorder) OnFinish(s annealing.Summary) {
	a := r.a
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress.Iteration = s.Iterations
	a.progress.Temperature = s.FinalTemperature
	a.progress.CurrentFitness = s.FinalFitness
}
