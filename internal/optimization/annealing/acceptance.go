package annealing

import (
	"math"
	"strings"

	"github.com/copyleftdev/anneal/internal/optimization"
)

// AcceptanceFunc maps an energy difference and a temperature to a score.
// A non-improving move is accepted when a fresh uniform draw in [0,1) falls
// below the score, so scores <= 0 never accept and scores >= 1 always do.
type AcceptanceFunc func(energyDiff, temperature float64) float64

// Boltzmann returns exp(-energyDiff / (constant * temperature)).
//
// For a positive energyDiff the score goes to 0 as the temperature drops to
// zero and to 1 as it grows without bound. At or below zero temperature only
// neutral and improving moves score 1.
func Boltzmann(constant float64) AcceptanceFunc {
	return func(energyDiff, temperature float64) float64 {
		if !(temperature > 0) {
			if energyDiff <= 0 {
				return 1
			}
			return 0
		}
		return math.Exp(-energyDiff / (constant * temperature))
	}
}

// Metropolis is Boltzmann with a unit constant.
var Metropolis = Boltzmann(1)

// NeverAccept rejects every non-improving move, turning the search into
// greedy hill climbing.
func NeverAccept(_, _ float64) float64 {
	return -1
}

// AcceptanceByName resolves a registered acceptance function. constant is
// only used by "boltzmann"; zero means 1.
func AcceptanceByName(name string, constant float64) (AcceptanceFunc, error) {
	switch strings.ToLower(name) {
	case "", "boltzmann":
		if constant == 0 {
			constant = 1
		}
		if constant < 0 || math.IsNaN(constant) {
			return nil, optimization.Invalid(optimization.ErrInvalidConfig,
				"boltzmann constant must be positive, got %v", constant).WithComponent("acceptance")
		}
		return Boltzmann(constant), nil
	case "metropolis":
		return Metropolis, nil
	case "never", "greedy":
		return NeverAccept, nil
	default:
		return nil, optimization.Invalid(optimization.ErrUnknownAcceptance, "%q", name).WithComponent("acceptance")
	}
}
