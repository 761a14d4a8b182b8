package swarm

import (
	"github.com/pkg/errors"
	"github.com/rwcarlsen/cpso"
)

type Population []*Particle

// NewPopulation creates n particles uniformly distributed in the box b.
// Each particle gets its own random stream split from rng in order, so the
// population and every later update are reproducible from rng's seed.
// Particle i < len(init) starts at init[i] instead of a random position.
func NewPopulation(n int, b *cpso.Bounds, obj cpso.Objectiver, rng *cpso.Rand, init ...[]float64) (Population, error) {
	if n < 1 {
		return nil, cpso.ErrSwarmSize
	}

	pop := make(Population, n)
	for i := range pop {
		prng := rng.Split()
		var p *Particle
		var err error
		if i < len(init) {
			p, err = NewParticleAt(i, b, init[i], obj, prng)
		} else {
			p, err = NewParticle(i, b, obj, prng)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "initializing particle %v", i)
		}
		pop[i] = p
	}
	return pop, nil
}

func (pop Population) Points() []cpso.Point {
	points := make([]cpso.Point, 0, len(pop))
	for _, p := range pop {
		points = append(points, p.Point)
	}
	return points
}

// Best returns the particle whose current position is not dominated by any
// particle scanned after it: the first particle is the incumbent and any
// later particle dominating the incumbent replaces it.
func (pop Population) Best() *Particle {
	if len(pop) == 0 {
		return nil
	}

	best := pop[0]
	for _, p := range pop[1:] {
		if p.Dominates(best) {
			best = p
		}
	}
	return best
}

// Mutations sums the mutation trials and acceptances of all particles.
func (pop Population) Mutations() (trials, accepted int) {
	for _, p := range pop {
		t, a := p.Mutations()
		trials += t
		accepted += a
	}
	return trials, accepted
}
