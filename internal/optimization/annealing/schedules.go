package annealing

import (
	"math"

	"github.com/copyleftdev/anneal/internal/optimization"
)

// Schedule is a cooling schedule. Schedules are values: Update returns the
// next state and leaves the receiver untouched.
//
// Update receives the solution as it stands after the latest move, so a
// schedule may react to it (for instance reheating when the search stalls).
// The built-in schedules ignore it.
type Schedule interface {
	Update(current Fitness) Schedule
	Temperature() float64
	Stop() bool
}

// Linear cools by subtracting a constant on every update.
type Linear struct {
	temperature float64
	constant    float64
	stopping    float64
}

// NewLinear creates a Linear schedule starting at temperature that stops once
// the temperature has fallen to stopping.
func NewLinear(temperature, constant, stopping float64) (Linear, error) {
	if err := validateStart(temperature, stopping); err != nil {
		return Linear{}, err.WithComponent("linear")
	}
	if !(constant > 0) || math.IsInf(constant, 1) {
		return Linear{}, optimization.Invalid(optimization.ErrInvalidSchedule,
			"decrement must be positive and finite, got %v", constant).WithComponent("linear")
	}
	return Linear{temperature: temperature, constant: constant, stopping: stopping}, nil
}

func (l Linear) Update(Fitness) Schedule {
	l.temperature -= l.constant
	return l
}

func (l Linear) Temperature() float64 { return l.temperature }

func (l Linear) Stop() bool { return l.temperature <= l.stopping }

// Geometric cools by multiplying by a factor in (0,1) on every update.
// Factors between 0.5 and 0.99 are the usual choice.
type Geometric struct {
	temperature float64
	factor      float64
	stopping    float64
}

// NewGeometric creates a Geometric schedule. stopping must be positive, since
// a geometric sequence never reaches zero.
func NewGeometric(temperature, factor, stopping float64) (Geometric, error) {
	if err := validateStart(temperature, stopping); err != nil {
		return Geometric{}, err.WithComponent("geometric")
	}
	if !(factor > 0 && factor < 1) {
		return Geometric{}, optimization.Invalid(optimization.ErrInvalidSchedule,
			"factor must lie in (0,1), got %v", factor).WithComponent("geometric")
	}
	if !(stopping > 0) {
		return Geometric{}, optimization.Invalid(optimization.ErrInvalidSchedule,
			"stopping temperature must be positive, got %v", stopping).WithComponent("geometric")
	}
	return Geometric{temperature: temperature, factor: factor, stopping: stopping}, nil
}

func (g Geometric) Update(Fitness) Schedule {
	g.temperature *= g.factor
	return g
}

func (g Geometric) Temperature() float64 { return g.temperature }

func (g Geometric) Stop() bool { return g.temperature <= g.stopping }

func validateStart(temperature, stopping float64) *optimization.Error {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) || math.IsNaN(stopping) {
		return optimization.Invalid(optimization.ErrInvalidSchedule,
			"temperature %v and stopping %v must be finite", temperature, stopping)
	}
	if stopping < 0 {
		return optimization.Invalid(optimization.ErrInvalidSchedule,
			"stopping temperature must not be negative, got %v", stopping)
	}
	if stopping >= temperature {
		return optimization.Invalid(optimization.ErrInvalidSchedule,
			"stopping temperature %v must be below initial temperature %v", stopping, temperature)
	}
	return nil
}

// Remaining counts how many updates s needs before Stop reports true,
// giving up at limit. The solution passed to Update is nil, so it is only
// meaningful for schedules that ignore it.
func Remaining(s Schedule, limit int) int {
	n := 0
	for !s.Stop() && n < limit {
		s = s.Update(nil)
		n++
	}
	return n
}

// Trajectory returns the temperatures s passes through, starting with the
// current one, until Stop or limit updates.
func Trajectory(s Schedule, limit int) []float64 {
	temps := []float64{s.Temperature()}
	for i := 0; i < limit && !s.Stop(); i++ {
		s = s.Update(nil)
		temps = append(temps, s.Temperature())
	}
	return temps
}
