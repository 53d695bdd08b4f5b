package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization"
)

// RunConfig describes one annealing run. It is read from YAML files by the
// CLI and from JSON request bodies by the server.
type RunConfig struct {
	Problem     ProblemConfig     `yaml:"problem" json:"problem"`
	Schedule    ScheduleConfig    `yaml:"schedule" json:"schedule"`
	Acceptance  AcceptanceConfig  `yaml:"acceptance" json:"acceptance"`
	Termination TerminationConfig `yaml:"termination" json:"termination"`
	// Seed for every random source of the run; 0 seeds from the clock.
	Seed int64 `yaml:"seed" json:"seed"`
}

// ProblemConfig selects the problem to anneal.
type ProblemConfig struct {
	// Name is "formula", "sphere" or "rastrigin".
	Name string `yaml:"name" json:"name"`
	// Bounds are [min, max] per dimension. Ignored by formula.
	Bounds [][]float64 `yaml:"bounds,omitempty" json:"bounds,omitempty"`
	// Sigma is the Gaussian step width as a fraction of each dimension.
	Sigma float64 `yaml:"sigma,omitempty" json:"sigma,omitempty"`
	// Samples is the number of neighbours proposed per scan.
	Samples int `yaml:"samples,omitempty" json:"samples,omitempty"`
	// Refine polishes the annealed best with a Nelder-Mead search. Ignored by formula.
	Refine bool `yaml:"refine,omitempty" json:"refine,omitempty"`
}

// ScheduleConfig describes a cooling schedule.
type ScheduleConfig struct {
	// Kind is "geometric" or "linear".
	Kind    string  `yaml:"kind" json:"kind"`
	Initial float64 `yaml:"initial" json:"initial"`
	// Constant is the factor for geometric schedules and the decrement for linear ones.
	Constant float64 `yaml:"constant" json:"constant"`
	Stopping float64 `yaml:"stopping" json:"stopping"`
}

// AcceptanceConfig selects the acceptance function.
type AcceptanceConfig struct {
	// Name is "boltzmann", "metropolis" or "never".
	Name     string  `yaml:"name" json:"name"`
	Constant float64 `yaml:"constant,omitempty" json:"constant,omitempty"`
}

// TerminationConfig bounds a run.
type TerminationConfig struct {
	// MaxIterations caps the run; 0 lets the schedule decide alone.
	MaxIterations uint64 `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	// StopOnZeroFitness ends the run when the current fitness is exactly 0.
	StopOnZeroFitness bool `yaml:"stop_on_zero_fitness,omitempty" json:"stop_on_zero_fitness,omitempty"`
	// OnExhausted is "terminate" (default) or "continue".
	OnExhausted string `yaml:"on_exhausted,omitempty" json:"on_exhausted,omitempty"`
}

// DefaultRunConfig is the cubic formula under the schedule it was
// originally demonstrated with.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Problem:    ProblemConfig{Name: "formula"},
		Schedule:   ScheduleConfig{Kind: "geometric", Initial: 800, Constant: 0.99, Stopping: 0.001},
		Acceptance: AcceptanceConfig{Name: "boltzmann", Constant: 1},
	}
}

// ApplyDefaults fills empty fields.
func (r *RunConfig) ApplyDefaults() {
	def := DefaultRunConfig()
	r.Problem.Name = strings.ToLower(r.Problem.Name)
	r.Schedule.Kind = strings.ToLower(r.Schedule.Kind)
	r.Termination.OnExhausted = strings.ToLower(r.Termination.OnExhausted)
	if r.Problem.Name == "" {
		r.Problem.Name = def.Problem.Name
	}
	if r.Problem.Name != "formula" {
		if r.Problem.Sigma == 0 {
			r.Problem.Sigma = 0.1
		}
		if r.Problem.Samples == 0 {
			r.Problem.Samples = 16
		}
	}
	if r.Schedule.Kind == "" {
		r.Schedule = def.Schedule
	}
	if r.Acceptance.Name == "" {
		r.Acceptance = def.Acceptance
	}
	if r.Termination.OnExhausted == "" {
		r.Termination.OnExhausted = "terminate"
	}
}

// Validate checks the parts of the run that do not need the annealing
// package to interpret. Schedule parameters are checked when the schedule is built.
func (r RunConfig) Validate() error {
	switch strings.ToLower(r.Problem.Name) {
	case "formula":
	case "sphere", "rastrigin":
		if len(r.Problem.Bounds) == 0 {
			return invalid("problem %q needs bounds", r.Problem.Name)
		}
		for i, b := range r.Problem.Bounds {
			if len(b) != 2 {
				return invalid("bound %d must be [min, max], got %v", i, b)
			}
		}
	default:
		return optimization.Invalid(optimization.ErrUnknownProblem, "%q", r.Problem.Name).WithComponent("config")
	}

	switch strings.ToLower(r.Schedule.Kind) {
	case "geometric", "linear":
	default:
		return invalid("unknown schedule kind %q", r.Schedule.Kind)
	}

	switch strings.ToLower(r.Termination.OnExhausted) {
	case "", "terminate", "continue":
	default:
		return invalid("on_exhausted must be terminate or continue, got %q", r.Termination.OnExhausted)
	}
	return nil
}

// BoundsPairs converts the configured bounds to fixed pairs.
func (p ProblemConfig) BoundsPairs() [][2]float64 {
	out := make([][2]float64, 0, len(p.Bounds))
	for _, b := range p.Bounds {
		if len(b) == 2 {
			out = append(out, [2]float64{b[0], b[1]})
		}
	}
	return out
}

// ParseRunConfig decodes YAML, fills defaults and validates the result.
func ParseRunConfig(data []byte) (RunConfig, error) {
	var rc RunConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return RunConfig{}, apperrors.Wrap(err, "decode run config").WithComponent("config")
	}
	rc.ApplyDefaults()
	if err := rc.Validate(); err != nil {
		return RunConfig{}, err
	}
	return rc, nil
}

// LoadRunConfig reads and parses a YAML run file.
func LoadRunConfig(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, apperrors.Wrapf(err, "read run config %s", path).WithComponent("config")
	}
	return ParseRunConfig(data)
}

func invalid(format string, args ...interface{}) error {
	return optimization.Invalid(optimization.ErrInvalidConfig, format, args...).WithComponent("config")
}
