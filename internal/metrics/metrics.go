// Package metrics exports annealing run progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/anneal/internal/optimization/annealing"
)

const namespace = "anneal"

// Collector owns the annealing metric vectors. One Collector serves any
// number of runs; each run gets its own Observer via ForRun.
type Collector struct {
	runs        *prometheus.CounterVec
	active      prometheus.Gauge
	moves       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	bestFitness *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished annealing runs by problem and stop reason.",
		}, []string{"problem", "reason"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Annealing runs currently in progress.",
		}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_accepted_total",
			Help:      "Committed moves by problem and direction.",
		}, []string{"problem", "direction"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_rejected_total",
			Help:      "Neighbours scored and rejected.",
		}, []string{"problem"}),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best fitness of the most recent run.",
		}, []string{"problem"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature",
			Help:      "Schedule temperature after the latest move.",
		}, []string{"problem"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of annealing runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"problem"}),
	}

	for _, col := range []prometheus.Collector{
		c.runs, c.active, c.moves, c.rejected, c.bestFitness, c.temperature, c.duration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ForRun returns an Observer that records one run under the given problem
// label. No series is created until the run starts, so runs rejected before
// starting leave nothing behind.
func (c *Collector) ForRun(problem string) annealing.Observer {
	return &runObserver{c: c, problem: problem}
}

type runObserver struct {
	c        *Collector
	problem  string
	rejected prometheus.Counter
	temp     prometheus.Gauge
	best     prometheus.Gauge
}

func (o *runObserver) OnStart(fitness, temperature float64) {
	o.rejected = o.c.rejected.WithLabelValues(o.problem)
	o.temp = o.c.temperature.WithLabelValues(o.problem)
	o.best = o.c.bestFitness.WithLabelValues(o.problem)

	o.c.active.Inc()
	o.best.Set(fitness)
	o.temp.Set(temperature)
}

func (o *runObserver) OnMove(m annealing.Move) {
	o.c.moves.WithLabelValues(o.problem, direction(m.EnergyDiff)).Inc()
	o.temp.Set(m.Temperature)
	if m.NewBest {
		o.best.Set(m.Fitness)
	}
}

func (o *runObserver) OnReject(float64, float64) {
	o.rejected.Inc()
}

func (o *runObserver) OnFinish(s annealing.Summary) {
	o.c.active.Dec()
	o.c.runs.WithLabelValues(o.problem, string(s.Reason)).Inc()
	o.c.duration.WithLabelValues(o.problem).Observe(s.Duration.Seconds())
	o.best.Set(s.BestFitness)
}

func direction(diff float64) string {
	switch {
	case diff < 0:
		return "improving"
	case diff > 0:
		return "worsening"
	default:
		return "neutral"
	}
}
