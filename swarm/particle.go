package swarm

import (
	"math"

	"github.com/rwcarlsen/cpso"
)

// Reflection selects how a particle that leaves the box bounds is brought
// back inside.
type Reflection int

const (
	// Reflect bounces the particle off the violated bound and, if the
	// bounce overshoots the opposite bound, keeps retreating with a halved
	// and reversed velocity until the position is inside.  Always
	// terminates inside the bounds.
	Reflect Reflection = iota
	// SingleBounce only performs the first bounce.  A particle with a
	// velocity larger than twice the box width can be left outside the
	// bounds.
	SingleBounce
)

// Step holds the per-iteration parameters of a particle update.
type Step struct {
	Inertia   float64
	Cognition float64
	Social    float64
	// Mutation is the probability of a mutation trial.
	Mutation float64
	// Accept is the probability of accepting a non-improving mutation.
	Accept float64
	// Vmax is the speed limit per dimension.  If nil, speed is unlimited.
	Vmax    []float64
	Reflect Reflection
}

type Particle struct {
	Id int
	cpso.Point
	Vel  []float64
	Best cpso.Point

	bounds *cpso.Bounds
	// Rand is the particle's own random stream.
	Rand *cpso.Rand

	// mutation trial and acceptance counts
	ntrial, naccept int
}

// NewParticle creates a particle with a position drawn uniformly from b
// using rng, zero velocity, and evaluates it with obj.
func NewParticle(id int, b *cpso.Bounds, obj cpso.Objectiver, rng *cpso.Rand) (*Particle, error) {
	return NewParticleAt(id, b, b.Rand(rng), obj, rng)
}

// NewParticleAt creates a particle at pos with zero velocity and evaluates
// it with obj.  pos must lie within b.
func NewParticleAt(id int, b *cpso.Bounds, pos []float64, obj cpso.Objectiver, rng *cpso.Rand) (*Particle, error) {
	cost, infeas, err := obj.Objective(append([]float64{}, pos...))
	if err != nil {
		return nil, err
	}
	p := &Particle{
		Id:     id,
		Point:  cpso.NewPoint(pos, cost, infeas),
		Vel:    make([]float64, b.Len()),
		bounds: b,
		Rand:   rng,
	}
	p.Best = p.Point
	return p, nil
}

// Clone returns a deep copy of p that shares no mutable state with it.  The
// copy has no random stream.
func (p *Particle) Clone() *Particle {
	c := *p
	c.Vel = append([]float64{}, p.Vel...)
	c.Rand = nil
	return &c
}

// Dominates reports whether p's current position dominates q's.
func (p *Particle) Dominates(q *Particle) bool {
	return p.Point.Dominates(q.Point)
}

// Update moves p toward its personal best and the global best gbest,
// re-evaluates it, tries a mutation and refreshes the personal best - in
// that order.
func (p *Particle) Update(gbest cpso.Point, obj cpso.Objectiver, s Step) error {
	p.updateVel(gbest, s)
	pos := p.Pos()
	p.move(pos, s.Reflect)

	cost, infeas, err := obj.Objective(append([]float64{}, pos...))
	if err != nil {
		return err
	}
	p.Point = cpso.NewPoint(pos, cost, infeas)

	if err := p.mutate(obj, s.Mutation, s.Accept); err != nil {
		return err
	}
	p.updateBest()
	return nil
}

func (p *Particle) updateVel(gbest cpso.Point, s Step) {
	for i, currv := range p.Vel {
		// r1 and r2 MUST be drawn for each dimension separately.
		r1 := p.Rand.Float64()
		r2 := p.Rand.Float64()
		p.Vel[i] = s.Inertia*currv +
			s.Cognition*r1*(p.Best.At(i)-p.At(i)) +
			s.Social*r2*(gbest.At(i)-p.At(i))
		if s.Vmax != nil && math.Abs(p.Vel[i]) > s.Vmax[i] {
			p.Vel[i] = math.Copysign(s.Vmax[i], p.Vel[i])
		}
	}
}

// move integrates the velocity into pos, reflecting off the bounds.
func (p *Particle) move(pos []float64, mode Reflection) {
	l, u := p.bounds.Lower, p.bounds.Upper
	out := func(i int) bool { return pos[i] > u[i] || pos[i] < l[i] }

	for i := range pos {
		x0 := pos[i]
		pos[i] = x0 + p.Vel[i]
		if !out(i) {
			continue
		}
		p.Vel[i] *= -1
		pos[i] = x0 + p.Vel[i]
		if mode == SingleBounce {
			continue
		}
		// Each retreat restarts from x0 with |v| halved, so pos converges
		// to x0 without accumulating rounding error.
		for out(i) {
			p.Vel[i] *= -0.5
			if p.Vel[i] == 0 {
				pos[i] = math.Min(u[i], math.Max(l[i], x0))
				break
			}
			pos[i] = x0 + p.Vel[i]
		}
	}
}

// mutate perturbs one random dimension inside a window that shrinks with
// pm.  Improving trials are kept; others are kept with probability accept.
func (p *Particle) mutate(obj cpso.Objectiver, pm, accept float64) error {
	if p.Rand.Float64() > pm {
		return nil
	}
	p.ntrial++

	b := p.bounds
	j := p.Rand.IntRange(0, p.Len())
	dx := pm * b.Width(j)
	lb := math.Max(p.At(j)-dx, b.Lower[j])
	ub := math.Min(p.At(j)+dx, b.Upper[j])

	trial := p.Pos()
	trial[j] = p.Rand.Unif(lb, ub)
	cost, infeas, err := obj.Objective(append([]float64{}, trial...))
	if err != nil {
		return err
	}

	if (infeas < p.Infeas && cost < p.Cost) || p.Rand.Float64() < accept {
		p.naccept++
		p.Point = cpso.NewPoint(trial, cost, infeas)
	}
	return nil
}

// Mutations returns the number of mutation trials p has made and how many
// of them were accepted.
func (p *Particle) Mutations() (trials, accepted int) { return p.ntrial, p.naccept }

func (p *Particle) updateBest() {
	if p.Point.Dominates(p.Best) {
		p.Best = p.Point
	}
}
