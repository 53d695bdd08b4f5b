package annealing

import (
	"context"
	"iter"
	"math/rand"
	"slices"
)

// countdown has a single neighbour, one below its current value.
type countdown struct {
	value float64
	// floor, when set, stops producing neighbours at or below it.
	floor *float64
}

func (c *countdown) Fitness() float64 { return c.value }

func (c *countdown) Neighbours() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		if c.floor != nil && c.value <= *c.floor {
			return
		}
		yield(c.value - 1)
	}
}

func (c *countdown) NeighbourFitness(n float64) float64 { return n }

func (c *countdown) ApplyNeighbour(n float64) { c.value = n }

func (c *countdown) Clone() *countdown {
	cp := *c
	return &cp
}

// landscape walks left or right over a fixed fitness profile. With rng set
// the two directions are offered in random order.
type landscape struct {
	heights []float64
	pos     int
	rng     *rand.Rand
}

func (l *landscape) Fitness() float64 { return l.heights[l.pos] }

func (l *landscape) Neighbours() iter.Seq[int] {
	return func(yield func(int) bool) {
		order := []int{l.pos - 1, l.pos + 1}
		if l.rng != nil && l.rng.Intn(2) == 0 {
			order[0], order[1] = order[1], order[0]
		}
		for _, p := range order {
			if p < 0 || p >= len(l.heights) {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

func (l *landscape) NeighbourFitness(p int) float64 { return l.heights[p] }

func (l *landscape) ApplyNeighbour(p int) { l.pos = p }

func (l *landscape) Clone() *landscape {
	return &landscape{heights: slices.Clone(l.heights), pos: l.pos, rng: l.rng}
}

// recorder keeps every event it sees.
type recorder struct {
	starts  int
	moves   []Move
	rejects int
	summary *Summary
}

func (r *recorder) OnStart(float64, float64)  { r.starts++ }
func (r *recorder) OnMove(m Move)             { r.moves = append(r.moves, m) }
func (r *recorder) OnReject(float64, float64) { r.rejects++ }
func (r *recorder) OnFinish(s Summary)        { r.summary = &s }

// alwaysAccept scores every move above any draw.
func alwaysAccept(_, _ float64) float64 { return 2 }

// reheat is a schedule that never cools, used to check caps and cancellation.
type reheat struct{ temperature float64 }

func (r reheat) Update(Fitness) Schedule { return r }
func (r reheat) Temperature() float64    { return r.temperature }
func (r reheat) Stop() bool              { return false }

// plateau offers an endless stream of worse neighbours.
type plateau struct{ value float64 }

func (p *plateau) Fitness() float64 { return p.value }

func (p *plateau) Neighbours() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for {
			if !yield(p.value + 1) {
				return
			}
		}
	}
}

func (p *plateau) NeighbourFitness(n float64) float64 { return n }

func (p *plateau) ApplyNeighbour(n float64) { p.value = n }

func (p *plateau) Clone() *plateau {
	cp := *p
	return &cp
}

// cancelAfterRejects cancels the run once n neighbours have been rejected.
type cancelAfterRejects struct {
	NopObserver
	n      int
	seen   *int
	cancel context.CancelFunc
}

func (c cancelAfterRejects) OnReject(float64, float64) {
	*c.seen++
	if *c.seen == c.n {
		c.cancel()
	}
}
