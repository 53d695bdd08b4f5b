package annealing

import "fmt"

// TerminationPolicy bounds a run. It is either ScheduleDriven or MaxIterations.
// The schedule's Stop is honoured under both.
type TerminationPolicy interface {
	fmt.Stringer
	limit() (n uint64, capped bool)
}

// ScheduleDriven runs until the schedule stops, with no iteration cap.
type ScheduleDriven struct{}

func (ScheduleDriven) limit() (uint64, bool) { return 0, false }

func (ScheduleDriven) String() string { return "schedule" }

// MaxIterations caps the run at N loop iterations.
type MaxIterations struct {
	N uint64
}

func (m MaxIterations) limit() (uint64, bool) { return m.N, true }

func (m MaxIterations) String() string { return fmt.Sprintf("max_iterations(%d)", m.N) }

// ExhaustionPolicy decides what happens when a full neighbour scan accepts nothing.
type ExhaustionPolicy int

const (
	// TerminateOnExhaustion ends the run. This is the default.
	TerminateOnExhaustion ExhaustionPolicy = iota
	// ContinueOnExhaustion cools the schedule without moving and scans again.
	ContinueOnExhaustion
)

func (p ExhaustionPolicy) String() string {
	switch p {
	case TerminateOnExhaustion:
		return "terminate"
	case ContinueOnExhaustion:
		return "continue"
	default:
		return fmt.Sprintf("ExhaustionPolicy(%d)", int(p))
	}
}

// StopReason says why a run ended.
type StopReason string

const (
	ScheduleStopped     StopReason = "schedule_stopped"
	IterationLimit      StopReason = "iteration_limit"
	NeighboursExhausted StopReason = "neighbours_exhausted"
	ZeroFitness         StopReason = "zero_fitness"
	Cancelled           StopReason = "cancelled"
)
