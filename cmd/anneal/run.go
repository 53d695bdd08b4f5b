package main

import (
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/anneal/internal/config"
	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization/annealer"
)

type runOptions struct {
	configPath string
	output     string
	history    bool

	problem       string
	bounds        []string
	sigma         float64
	samples       int
	refine        bool
	schedule      string
	initial       float64
	constant      float64
	stopping      float64
	acceptance    string
	kB            float64
	maxIterations uint64
	stopOnZero    bool
	onExhausted   string
	seed          int64
}

func newRunCmd(newLogger func(*cobra.Command) *zap.Logger) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one annealing problem and print the result",
		Long: "Run an annealing problem described by a YAML run file, flags, or both. " +
			"Flags override values from the file. Interrupting the run prints the partial result.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := opts.runConfig(cmd)
			if err != nil {
				return err
			}

			a, err := annealer.New(rc, annealer.Options{Logger: newLogger(cmd)})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			result, runErr := a.Optimize(ctx)
			if result == nil {
				return runErr
			}
			if !opts.history {
				result.History = nil
			}
			if err := writeOutput(cmd.OutOrStdout(), opts.output, result); err != nil {
				return err
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML run file")
	f.StringVarP(&opts.output, "output", "o", "json", "Output format (json, yaml)")
	f.BoolVar(&opts.history, "history", false, "Include accepted moves in the output")

	f.StringVar(&opts.problem, "problem", "formula", "Problem (formula, sphere, rastrigin)")
	f.StringSliceVar(&opts.bounds, "bounds", nil, "Comma-separated min:max per dimension, e.g. -5:5,-5:5")
	f.Float64Var(&opts.sigma, "sigma", 0.1, "Gaussian step width as a fraction of each dimension")
	f.IntVar(&opts.samples, "samples", 16, "Neighbours proposed per scan")
	f.BoolVar(&opts.refine, "refine", false, "Polish the best vector solution with Nelder-Mead")

	f.StringVar(&opts.schedule, "schedule", "geometric", "Cooling schedule (geometric, linear)")
	f.Float64Var(&opts.initial, "initial", 800, "Initial temperature")
	f.Float64Var(&opts.constant, "constant", 0.99, "Cooling factor (geometric) or decrement (linear)")
	f.Float64Var(&opts.stopping, "stopping", 0.001, "Stopping temperature")

	f.StringVar(&opts.acceptance, "acceptance", "boltzmann", "Acceptance function (boltzmann, metropolis, never)")
	f.Float64Var(&opts.kB, "boltzmann-constant", 1, "Boltzmann constant")

	f.Uint64Var(&opts.maxIterations, "max-iterations", 0, "Iteration cap; 0 lets the schedule decide")
	f.BoolVar(&opts.stopOnZero, "stop-on-zero", false, "Stop as soon as the fitness is exactly 0")
	f.StringVar(&opts.onExhausted, "on-exhausted", "terminate", "What a fruitless scan does (terminate, continue)")
	f.Int64Var(&opts.seed, "seed", 0, "Random seed; 0 seeds from the clock")

	return cmd
}

// runConfig starts from the run file, or the defaults, and applies every
// flag the user set explicitly.
func (o *runOptions) runConfig(cmd *cobra.Command) (config.RunConfig, error) {
	rc := config.DefaultRunConfig()
	if o.configPath != "" {
		loaded, err := config.LoadRunConfig(o.configPath)
		if err != nil {
			return config.RunConfig{}, err
		}
		rc = loaded
	}

	f := cmd.Flags()
	if f.Changed("problem") {
		rc.Problem.Name = o.problem
	}
	if f.Changed("bounds") {
		bounds, err := parseBounds(o.bounds)
		if err != nil {
			return config.RunConfig{}, err
		}
		rc.Problem.Bounds = bounds
	}
	if f.Changed("sigma") {
		rc.Problem.Sigma = o.sigma
	}
	if f.Changed("samples") {
		rc.Problem.Samples = o.samples
	}
	if f.Changed("refine") {
		rc.Problem.Refine = o.refine
	}
	if f.Changed("schedule") {
		rc.Schedule.Kind = o.schedule
	}
	if f.Changed("initial") {
		rc.Schedule.Initial = o.initial
	}
	if f.Changed("constant") {
		rc.Schedule.Constant = o.constant
	}
	if f.Changed("stopping") {
		rc.Schedule.Stopping = o.stopping
	}
	if f.Changed("acceptance") {
		rc.Acceptance.Name = o.acceptance
	}
	if f.Changed("boltzmann-constant") {
		rc.Acceptance.Constant = o.kB
	}
	if f.Changed("max-iterations") {
		rc.Termination.MaxIterations = o.maxIterations
	}
	if f.Changed("stop-on-zero") {
		rc.Termination.StopOnZeroFitness = o.stopOnZero
	}
	if f.Changed("on-exhausted") {
		rc.Termination.OnExhausted = o.onExhausted
	}
	if f.Changed("seed") {
		rc.Seed = o.seed
	}

	rc.ApplyDefaults()
	if err := rc.Validate(); err != nil {
		return config.RunConfig{}, err
	}
	return rc, nil
}

func parseBounds(specs []string) ([][]float64, error) {
	out := make([][]float64, 0, len(specs))
	for _, text := range specs {
		lowText, highText, ok := strings.Cut(text, ":")
		if !ok {
			return nil, apperrors.Errorf("bound %q: want min:max", text).WithComponent("cli")
		}
		low, err := strconv.ParseFloat(strings.TrimSpace(lowText), 64)
		if err != nil {
			return nil, apperrors.Wrapf(err, "bound %q", text).WithComponent("cli")
		}
		high, err := strconv.ParseFloat(strings.TrimSpace(highText), 64)
		if err != nil {
			return nil, apperrors.Wrapf(err, "bound %q", text).WithComponent("cli")
		}
		out = append(out, []float64{low, high})
	}
	return out, nil
}
