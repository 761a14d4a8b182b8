// Package swarm implements a constrained particle swarm optimizer.
// Particles are compared by feasibility-aware dominance: lower or equal
// infeasibility and strictly lower cost.  Each particle update ends with a
// random local mutation whose probability and window shrink over the run.
package swarm

import (
	"database/sql"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rwcarlsen/cpso"
	"github.com/rwcarlsen/cpso/mesh"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultParticles = 20
	DefaultMaxIter   = 500
	DefaultCognition = 0.2
	DefaultSocial    = 0.2
	// DefaultInertiaHigh and DefaultInertiaLow bound the linearly
	// decreasing inertia schedule.
	DefaultInertiaHigh = 0.1
	DefaultInertiaLow  = 0.01
	// DefaultMutationDecay is the exponent mu of the mutation probability
	// schedule (1 - iter/(maxiter-1))^(1/mu).  Smaller values decay faster.
	DefaultMutationDecay = 0.1
	// DefaultAccept is the probability of keeping a mutation that does not
	// improve both cost and infeasibility.
	DefaultAccept = 0.5
	DefaultSeed   = 1
)

var ErrTerminated = errors.New("swarm already terminated")

// State is the lifecycle stage of an Iterator.
type State int

const (
	Initializing State = iota
	Iterating
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Iterating:
		return "iterating"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Constriction calculates the constriction coefficient for the given c1 and
// c2 for the particle velocity equation:
//
//	v_next = k(v_curr + c1*rand*(p_glob-x) + c2*rand*(p_personal-x))
//
// c1+c2 must be greater than 4.  The result is commonly used as a fixed
// inertia with learning factors k*c1 and k*c2.  See:
//
//	Clerc and M.  “The swarm and the queen: towards a deterministic and
//	adaptive particle swarm optimization” Proc. 1999 Congress on
//	Evolutionary Computation, pp. 1951-1957
func Constriction(c1, c2 float64) float64 {
	phi := c1 + c2
	return 2 / math.Abs(2-phi-math.Sqrt(phi*phi-4*phi))
}

type Option func(*Iterator)

// Particles sets the swarm size.
func Particles(n int) Option {
	return func(it *Iterator) { it.nparticles = n }
}

func MaxIter(n int) Option {
	return func(it *Iterator) { it.MaxIter = n }
}

func LearnFactors(cognition, social float64) Option {
	return func(it *Iterator) {
		it.Cognition = cognition
		it.Social = social
	}
}

// Inertia sets the bounds of the default inertia schedule:
//
//	w(iter) = ((maxiter - iter) - (high - low)) / maxiter + low
func Inertia(high, low float64) Option {
	return func(it *Iterator) {
		it.InertiaHigh = high
		it.InertiaLow = low
		it.InertiaFn = nil
	}
}

func FixedInertia(v float64) Option {
	return func(it *Iterator) {
		it.InertiaFn = func(iter int) float64 { return v }
	}
}

// ConstrictionFactors sets a fixed inertia equal to Constriction(c1, c2)
// and learning factors c1 and c2 multiplied by it.
func ConstrictionFactors(c1, c2 float64) Option {
	return func(it *Iterator) {
		k := Constriction(c1, c2)
		it.Cognition = k * c1
		it.Social = k * c2
		FixedInertia(k)(it)
	}
}

// MutationDecay sets the exponent mu of the mutation probability schedule.
func MutationDecay(mu float64) Option {
	return func(it *Iterator) { it.Mu = mu }
}

// MutationAccept sets the probability of keeping a non-improving mutation.
func MutationAccept(p float64) Option {
	return func(it *Iterator) { it.Accept = p }
}

// Seed sets the seed of the random stream all particle streams are split
// from.  Equal seeds and inputs give identical runs.
func Seed(s uint64) Option {
	return func(it *Iterator) { it.seed = s }
}

func Vmax(vmaxes []float64) Option {
	return func(it *Iterator) { it.Vmax = vmaxes }
}

// VmaxAll sets the same speed limit for every dimension.
func VmaxAll(vmax float64) Option {
	return func(it *Iterator) {
		it.Vmax = nil
		it.vmaxAll = vmax
	}
}

// Bounce selects the boundary handling mode.  Reflect is the default.
func Bounce(mode Reflection) Option {
	return func(it *Iterator) { it.Reflect = mode }
}

// Parallel updates particles on up to n goroutines.  Because each particle
// owns its random stream and the global best is frozen during an iteration,
// results are identical to a sequential run.  The objective must be safe for
// concurrent use.  Values below 2 update sequentially, which is the default.
func Parallel(n int) Option {
	return func(it *Iterator) { it.Workers = n }
}

// InitPoints places the first len(points) particles at the given positions
// instead of random ones.
func InitPoints(points ...[]float64) Option {
	return func(it *Iterator) { it.initpoints = points }
}

// Mesh evaluates the objective at m.Nearest(x) for every particle position
// x.  Particles still move in continuous space.
func Mesh(m mesh.Mesh) Option {
	return func(it *Iterator) { it.mesh = m }
}

// DB records particle and global best positions for every iteration into
// db.  See TblParticles and friends.
func DB(db *sql.DB) Option {
	return func(it *Iterator) { it.Db = db }
}

func Logger(l *zap.Logger) Option {
	return func(it *Iterator) { it.Log = l }
}

// Observe reports progress to the prometheus collectors in m.
func Observe(m *Metrics) Option {
	return func(it *Iterator) { it.Metrics = m }
}

type Iterator struct {
	Pop       Population
	Bounds    *cpso.Bounds
	MaxIter   int
	Cognition float64
	Social    float64
	// InertiaHigh and InertiaLow bound the default inertia schedule.  They
	// are ignored if InertiaFn is set.
	InertiaHigh float64
	InertiaLow  float64
	InertiaFn   func(iter int) float64
	// Mu is the mutation probability decay exponent.
	Mu     float64
	Accept float64
	// Vmax is the speed limit per dimension for particles.  If nil,
	// infinity is used.
	Vmax    []float64
	Reflect Reflection
	// Workers is the number of goroutines particles are updated on.
	Workers int
	Db      *sql.DB
	Log     *zap.Logger
	Metrics *Metrics
	// RunId identifies this run in the trace tables.
	RunId uuid.UUID

	obj        cpso.Objectiver
	counter    *cpso.Counter
	nparticles int
	seed       uint64
	vmaxAll    float64
	initpoints [][]float64
	mesh       mesh.Mesh
	state      State
	count      int
	best       *Particle
	ntrial     int
	naccept    int
	neval      int
}

// New validates the configuration, creates and evaluates the swarm within
// the box bounds low and up and returns an iterator ready to run.
func New(obj cpso.Objectiver, low, up []float64, opts ...Option) (*Iterator, error) {
	b, err := cpso.NewBounds(low, up)
	if err != nil {
		return nil, err
	}

	it := &Iterator{
		Bounds:      b,
		MaxIter:     DefaultMaxIter,
		Cognition:   DefaultCognition,
		Social:      DefaultSocial,
		InertiaHigh: DefaultInertiaHigh,
		InertiaLow:  DefaultInertiaLow,
		Mu:          DefaultMutationDecay,
		Accept:      DefaultAccept,
		Log:         zap.NewNop(),
		nparticles:  DefaultParticles,
		seed:        DefaultSeed,
		vmaxAll:     math.Inf(1),
		state:       Initializing,
	}
	for _, opt := range opts {
		opt(it)
	}
	if err := it.validate(); err != nil {
		return nil, err
	}

	if it.Vmax == nil && !math.IsInf(it.vmaxAll, 1) {
		it.Vmax = make([]float64, b.Len())
		for i := range it.Vmax {
			it.Vmax[i] = it.vmaxAll
		}
	}

	if it.mesh != nil {
		obj = meshObj{Objectiver: obj, m: it.mesh}
	}
	it.counter = cpso.NewCounter(obj)
	it.obj = it.counter

	it.Pop, err = NewPopulation(it.nparticles, b, it.obj, cpso.NewRand(it.seed), it.initpoints...)
	if err != nil {
		return nil, err
	}
	it.best = it.Pop[0].Clone()

	it.RunId = uuid.New()
	if err := it.initdb(); err != nil {
		return nil, err
	}

	it.state = Iterating
	it.Log.Info("swarm initialized",
		zap.Stringer("run", it.RunId),
		zap.Int("particles", len(it.Pop)),
		zap.Int("dims", b.Len()),
		zap.Int("maxiter", it.MaxIter),
		zap.Uint64("seed", it.seed),
	)
	return it, nil
}

func (it *Iterator) validate() error {
	if it.nparticles < 1 {
		return cpso.ErrSwarmSize
	} else if it.MaxIter < 2 {
		return errors.Wrapf(cpso.ErrMaxIter, "got %v", it.MaxIter)
	} else if it.Mu <= 0 {
		return errors.Wrapf(cpso.ErrConfig, "mutation decay must be positive, got %v", it.Mu)
	} else if it.Accept < 0 || it.Accept > 1 {
		return errors.Wrapf(cpso.ErrConfig, "mutation accept probability %v outside [0,1]", it.Accept)
	} else if it.Workers < 0 {
		return errors.Wrapf(cpso.ErrConfig, "negative worker count %v", it.Workers)
	} else if it.Vmax != nil && len(it.Vmax) != it.Bounds.Len() {
		return errors.Wrapf(cpso.ErrConfig, "vmax has %v dims, bounds have %v", len(it.Vmax), it.Bounds.Len())
	} else if len(it.initpoints) > it.nparticles {
		return errors.Wrapf(cpso.ErrConfig, "%v initial points for %v particles", len(it.initpoints), it.nparticles)
	}
	for i, p := range it.initpoints {
		if len(p) != it.Bounds.Len() || !it.Bounds.Contains(p) {
			return errors.Wrapf(cpso.ErrConfig, "initial point %v not inside bounds: %v", i, p)
		}
	}
	return nil
}

// Inertia returns the inertia weight used in iteration iter.
func (it *Iterator) Inertia(iter int) float64 {
	if it.InertiaFn != nil {
		return it.InertiaFn(iter)
	}
	return (float64(it.MaxIter-iter)-(it.InertiaHigh-it.InertiaLow))/float64(it.MaxIter) + it.InertiaLow
}

// MutationProb returns the mutation probability used in iteration iter.
// It decays from 1 at the first iteration to 0 at the last.
func (it *Iterator) MutationProb(iter int) float64 {
	return math.Pow(1-float64(iter)/float64(it.MaxIter-1), 1/it.Mu)
}

func (it *Iterator) State() State { return it.state }

// Niter returns the number of completed iterations.
func (it *Iterator) Niter() int { return it.count }

// Neval returns the number of objective evaluations so far, including
// those made while initializing the swarm.
func (it *Iterator) Neval() int { return it.counter.Count() }

// Best returns a copy of the global best particle.
func (it *Iterator) Best() *Particle { return it.best.Clone() }

// selectBest replaces the global best with a copy of the swarm's best
// particle if that dominates it.
func (it *Iterator) selectBest() {
	if pbest := it.Pop.Best(); pbest.Dominates(it.best) {
		it.best = pbest.Clone()
	}
}

// Iterate runs a single iteration: select the global best, compute the
// schedules and update every particle against the global best snapshot.
// After MaxIter iterations a final selection runs and the iterator
// terminates.  An objective error terminates the iterator and is returned.
func (it *Iterator) Iterate() (best cpso.Point, err error) {
	if it.state != Iterating {
		return it.best.Point, ErrTerminated
	}
	iter := it.count

	it.selectBest()
	step := Step{
		Inertia:   it.Inertia(iter),
		Cognition: it.Cognition,
		Social:    it.Social,
		Mutation:  it.MutationProb(iter),
		Accept:    it.Accept,
		Vmax:      it.Vmax,
		Reflect:   it.Reflect,
	}

	if err := it.update(it.best.Point, step); err != nil {
		it.state = Terminated
		it.Log.Error("swarm aborted", zap.Int("iter", iter), zap.Error(err))
		return it.best.Point, errors.Wrapf(err, "iteration %v", iter)
	}
	it.count++

	if it.count == it.MaxIter {
		it.selectBest()
		it.state = Terminated
	}

	if err := it.updateDb(); err != nil {
		it.state = Terminated
		return it.best.Point, err
	}
	it.observe()

	it.Log.Debug("iteration complete",
		zap.Int("iter", iter),
		zap.Float64("inertia", step.Inertia),
		zap.Float64("mutation", step.Mutation),
		zap.Float64("cost", it.best.Cost),
		zap.Float64("infeas", it.best.Infeas),
	)
	if it.state == Terminated {
		it.Log.Info("swarm terminated",
			zap.Stringer("run", it.RunId),
			zap.Int("niter", it.count),
			zap.Int("neval", it.Neval()),
			zap.Float64("cost", it.best.Cost),
			zap.Float64("infeas", it.best.Infeas),
		)
	}
	return it.best.Point, nil
}

func (it *Iterator) update(gbest cpso.Point, s Step) error {
	if it.Workers < 2 {
		for _, p := range it.Pop {
			if err := p.Update(gbest, it.obj, s); err != nil {
				return errors.Wrapf(err, "particle %v", p.Id)
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(it.Workers)
	for _, p := range it.Pop {
		g.Go(func() error {
			if err := p.Update(gbest, it.obj, s); err != nil {
				return errors.Wrapf(err, "particle %v", p.Id)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run iterates until the iterator terminates and returns the global best.
func (it *Iterator) Run() (*Particle, error) {
	for it.state == Iterating {
		if _, err := it.Iterate(); err != nil {
			return it.Best(), err
		}
	}
	return it.Best(), nil
}

// Minimize runs a swarm over the box bounds low and up and returns the
// best particle found.
func Minimize(obj cpso.Objectiver, low, up []float64, opts ...Option) (*Particle, error) {
	it, err := New(obj, low, up, opts...)
	if err != nil {
		return nil, err
	}
	return it.Run()
}

type meshObj struct {
	cpso.Objectiver
	m mesh.Mesh
}

func (o meshObj) Objective(v []float64) (float64, float64, error) {
	return o.Objectiver.Objective(o.m.Nearest(v))
}
