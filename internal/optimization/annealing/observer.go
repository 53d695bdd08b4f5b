package annealing

// Move describes a committed move.
type Move struct {
	Iteration  int
	Fitness    float64
	EnergyDiff float64
	// Temperature after the schedule was advanced.
	Temperature float64
	Improving   bool
	NewBest     bool
}

// Observer receives run progress. Calls happen on the goroutine running
// Anneal; implementations that are read elsewhere must synchronise.
type Observer interface {
	OnStart(fitness, temperature float64)
	OnMove(m Move)
	OnReject(energyDiff, temperature float64)
	OnFinish(s Summary)
}

// NopObserver ignores everything. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) OnStart(float64, float64)  {}
func (NopObserver) OnMove(Move)               {}
func (NopObserver) OnReject(float64, float64) {}
func (NopObserver) OnFinish(Summary)          {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) OnStart(fitness, temperature float64) {
	for _, ob := range o {
		ob.OnStart(fitness, temperature)
	}
}

func (o Observers) OnMove(m Move) {
	for _, ob := range o {
		ob.OnMove(m)
	}
}

func (o Observers) OnReject(energyDiff, temperature float64) {
	for _, ob := range o {
		ob.OnReject(energyDiff, temperature)
	}
}

func (o Observers) OnFinish(s Summary) {
	for _, ob := range o {
		ob.OnFinish(s)
	}
}
